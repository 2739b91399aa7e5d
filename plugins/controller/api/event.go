// Copyright (c) 2019 The Netfence Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api defines the event-loop contract between the controller and
// the plugins. All state changes enter the agent as events and are
// processed one by one from a single thread, so event handlers never need
// their own locking for the processing path.
package api

// EventMethodType tells how an event should be dispatched to handlers.
type EventMethodType int

const (
	// Resync events rebuild the full state of handlers from a snapshot.
	Resync EventMethodType = iota
	// Update events carry an incremental state change.
	Update
)

// UpdateDirectionType tells the order in which handlers process an
// update event.
type UpdateDirectionType int

const (
	// Forward dispatches the event to handlers in their registration
	// order.
	Forward UpdateDirectionType = iota
	// Reverse dispatches the event to handlers in the reverse order.
	// Used by teardown events: upstream handlers keep their state until
	// the downstream ones have cleaned up.
	Reverse
)

// DirectionalEvent is optionally implemented by update events that need
// a non-default dispatch order.
type DirectionalEvent interface {
	// Direction returns the handler dispatch order for the event.
	Direction() UpdateDirectionType
}

// Event represents a single work item for the event loop.
type Event interface {
	// GetName returns a human-readable name of the event type.
	GetName() string

	// String returns a description of the event instance.
	String() string

	// Method tells whether the event is processed as a resync or as an
	// incremental update.
	Method() EventMethodType

	// IsBlocking returns true if the producer of the event waits for the
	// event to be processed.
	IsBlocking() bool

	// Done is called by the event loop once the event is fully processed,
	// with nil or the (first) error returned by a handler.
	Done(err error)
}

// EventHandler is implemented by plugins that react to events.
type EventHandler interface {
	// String identifies the handler in logs.
	String() string

	// HandlesEvent is used by the loop to skip handlers not interested
	// in the given event.
	HandlesEvent(event Event) bool

	// Resync rebuilds the handler state from the snapshot carried by the
	// event. The first event delivered to every handler is always a resync.
	Resync(event Event) error

	// Update applies an incremental state change. The returned string
	// is a log-friendly description of what was changed.
	Update(event Event) (changeDescription string, err error)
}

// EventLoop accepts events for processing.
type EventLoop interface {
	// PushEvent adds an event into the queue. It returns an error if the
	// queue is full or the loop is shut down.
	PushEvent(event Event) error
}
