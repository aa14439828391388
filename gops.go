///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - gops.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
//
//nolint:godoclint,nolintlint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"fmt"
	"log"

	"github.com/google/gops/agent"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	enableGops bool
	gopsAddr   string
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// gopsInit starts the diagnostics agent.  Cleanup is left to gopsClose so that the
// supervisor, not the agent, owns signal handling.
func gopsInit() error {
	if err := agent.Listen(agent.Options{
		Addr:            gopsAddr,
		ShutdownCleanup: false,
	}); err != nil {
		return fmt.Errorf("failed to start gops agent: %w", err)
	}

	log.Printf("%sStarted gops agent",
		toolPrefix())

	return nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func gopsClose() {
	agent.Close()
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
