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

// netfence-agent runs the policy engine and its REST API. Every flag can
// also be set through the environment with the NETFENCE_ prefix, e.g.
// NETFENCE_CONFIG_FILE.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/namsral/flag"
	"github.com/sirupsen/logrus"

	"github.com/netfence/netfence/agent"
	"github.com/netfence/netfence/plugins/fenceconf"
)

func main() {
	flags := flag.NewFlagSetWithEnvPrefix(os.Args[0], "NETFENCE", flag.ExitOnError)
	var (
		configFile = flags.String("config-file", "",
			"path to the agent configuration file")
		endpoint = flags.String("endpoint", "",
			"REST API endpoint, overrides the configuration file")
		bootstrapFile = flags.String("bootstrap-file", "",
			"state snapshot applied on startup, overrides the configuration file")
		logLevel = flags.String("log-level", "info",
			"log level (debug, info, warn, error)")
	)
	flags.Parse(os.Args[1:])

	log := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("invalid log level: %v", err)
	}
	log.SetLevel(level)

	config, err := fenceconf.LoadFrom(*configFile)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if *endpoint != "" {
		config.Endpoint = *endpoint
	}
	if *bootstrapFile != "" {
		config.BootstrapFile = *bootstrapFile
	}
	if err := config.Validate(); err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	if err := run(config, log); err != nil {
		log.Fatalf("netfence-agent failed: %v", err)
	}
}

func run(config *fenceconf.Config, log *logrus.Logger) error {
	netfence := agent.New(config, log)
	if err := netfence.Init(); err != nil {
		return err
	}
	defer func() {
		if err := netfence.Close(); err != nil {
			log.Errorf("shutdown error: %v", err)
		}
	}()
	return netfence.Run(signalContext(log))
}

// signalContext returns a context canceled when SIGTERM or SIGINT is
// received, SIGTERM being what a pod delete sends.
func signalContext(log *logrus.Logger) context.Context {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-sigChan
		log.Infof("%v received, shutting down", sig)
		cancel()
	}()
	return ctx
}
