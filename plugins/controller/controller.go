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

// Package controller implements the event loop of the agent. Events are
// queued by producers (REST API, bootstrap, pod manager) and dispatched
// to the registered handlers from a single goroutine, in the order of
// arrival.
package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/netfence/netfence/plugins/controller/api"
)

const (
	// default capacity of the event queue
	defaultQueueSize = 1000
)

var (
	// ErrClosedController is returned by PushEvent after the controller
	// was closed.
	ErrClosedController = errors.New("controller was closed")

	// ErrEventQueueFull is returned by PushEvent when the event queue
	// has no free capacity.
	ErrEventQueueFull = errors.New("event queue is full")

	// ErrResyncNotCompleted is returned for update events received before
	// the first resync.
	ErrResyncNotCompleted = errors.New("update received before the first resync")
)

// Controller runs the event loop and dispatches events to handlers.
type Controller struct {
	Deps

	eventQueue chan api.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	evSeqNum    atomic.Uint64
	resyncCount atomic.Uint64
	errorCount  atomic.Uint64
}

// Deps lists the dependencies of the controller.
type Deps struct {
	Log logrus.FieldLogger

	// EventHandlers are dispatched to in the given order. The order
	// matters: downstream handlers see the state already updated by the
	// upstream ones.
	EventHandlers []api.EventHandler

	// QueueSize overrides the event queue capacity when positive.
	QueueSize int
}

// Stats is a snapshot of the event-loop counters.
type Stats struct {
	EventCount  uint64 `json:"eventCount"`
	ResyncCount uint64 `json:"resyncCount"`
	ErrorCount  uint64 `json:"errorCount"`
	QueueLength int    `json:"queueLength"`
}

// Init allocates the queue and starts the event loop.
func (c *Controller) Init() error {
	queueSize := c.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	c.eventQueue = make(chan api.Event, queueSize)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.wg.Add(1)
	go c.eventLoop()
	return nil
}

// PushEvent enqueues an event for processing.
func (c *Controller) PushEvent(event api.Event) error {
	select {
	case <-c.ctx.Done():
		return ErrClosedController
	default:
	}
	select {
	case c.eventQueue <- event:
		queueLength.Set(float64(len(c.eventQueue)))
		return nil
	default:
		return ErrEventQueueFull
	}
}

// GetStats returns the event-loop counters.
func (c *Controller) GetStats() Stats {
	return Stats{
		EventCount:  c.evSeqNum.Load(),
		ResyncCount: c.resyncCount.Load(),
		ErrorCount:  c.errorCount.Load(),
		QueueLength: len(c.eventQueue),
	}
}

// Close stops the event loop and waits until it finishes.
func (c *Controller) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *Controller) eventLoop() {
	defer c.wg.Done()
	c.Log.Debug("event loop is running")

	for {
		select {
		case <-c.ctx.Done():
			c.Log.Debug("event loop is stopping")
			return

		case event := <-c.eventQueue:
			queueLength.Set(float64(len(c.eventQueue)))
			c.processEvent(event)
		}
	}
}

func (c *Controller) processEvent(event api.Event) {
	seqNum := c.evSeqNum.Add(1)
	isResync := event.Method() == api.Resync

	// updates are refused until handlers have seen the initial state
	if !isResync && c.resyncCount.Load() == 0 {
		c.Log.Warnf("#%d: dropping %s: %v", seqNum, event.GetName(), ErrResyncNotCompleted)
		c.errorCount.Add(1)
		event.Done(ErrResyncNotCompleted)
		return
	}
	if isResync {
		c.resyncCount.Add(1)
	}

	c.Log.Infof("#%d: started processing of: %s", seqNum, event.String())
	start := time.Now()

	var firstErr error
	for _, handler := range c.orderedHandlers(event) {
		if !handler.HandlesEvent(event) {
			continue
		}
		var err error
		if isResync {
			err = handler.Resync(event)
		} else {
			var change string
			change, err = handler.Update(event)
			if change != "" {
				c.Log.Debugf("#%d: %s: %s", seqNum, handler.String(), change)
			}
		}
		if err != nil {
			err = errors.Wrapf(err, "handler %s", handler.String())
			c.Log.Errorf("#%d: %v", seqNum, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	elapsed := time.Since(start)
	reportEventProcessed(event, elapsed, firstErr)
	if firstErr == nil {
		c.Log.Infof("#%d: finished processing of %s, took %v",
			seqNum, event.GetName(), elapsed.Round(time.Microsecond))
	} else {
		c.errorCount.Add(1)
	}
	event.Done(firstErr)
}

// orderedHandlers returns the handlers in the dispatch order requested
// by the event. Resyncs always run forward.
func (c *Controller) orderedHandlers(event api.Event) []api.EventHandler {
	directional, isDirectional := event.(api.DirectionalEvent)
	if event.Method() == api.Resync || !isDirectional || directional.Direction() == api.Forward {
		return c.EventHandlers
	}
	reversed := make([]api.EventHandler, 0, len(c.EventHandlers))
	for i := len(c.EventHandlers) - 1; i >= 0; i-- {
		reversed = append(reversed, c.EventHandlers[i])
	}
	return reversed
}
