///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - signals_common.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
//
//nolint:godoclint,nolintlint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"os"
	"sync/atomic"
	"syscall"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	// Zero while running; set once to the number of the signal that requested shutdown.
	shutdownState atomic.Int32

	resyncRequested atomic.Bool

	terminationSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// handleSignal performs the only state change permitted on signal delivery: a single
// atomic store.  It reports whether the signal was one the supervisor acts on.
func handleSignal(s os.Signal) bool {
	sig, ok := s.(syscall.Signal)
	if !ok {
		return false
	}

	switch sig {
	case syscall.SIGHUP:
		resyncRequested.Store(true)

		return true

	case syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
		shutdownState.CompareAndSwap(0, int32(sig))

		return true
	}

	return false
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func shutdownRequested() (syscall.Signal, bool) {
	v := shutdownState.Load()

	return syscall.Signal(v), v != 0
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
