///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - exit.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
//
//nolint:godoclint,nolintlint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"log"
	"sync"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	cleanupMutex sync.Mutex
	cleanups     []func()
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// atExit registers f to run, in reverse registration order, on both normal and fatal exit.
func atExit(f func()) {
	cleanupMutex.Lock()

	defer cleanupMutex.Unlock()

	cleanups = append(cleanups, f)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func runCleanups() {
	cleanupMutex.Lock()
	pending := cleanups
	cleanups = nil
	cleanupMutex.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		pending[i]()
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// fatalf releases every registered resource and then terminates the process.
func fatalf(format string, v ...any) {
	runCleanups()

	log.Fatalf(errorPrefix()+format, v...) // LINTED: Fatalf
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
