//go:build !linux

///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - main_other.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import "log"

///////////////////////////////////////////////////////////////////////////////////////////////////

func main() {
	log.Fatalf("%s: inotify support is required; only Linux is supported", // LINTED: Fatalf
		versionString())
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
