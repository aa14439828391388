//go:build linux

///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - capability_linux.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"log"
	"os"

	"kernel.org/pub/linux/libs/security/libcap/cap"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// checkCapability warns when nginx, which inherits our credentials, will not be able to
// bind the privileged ports a typical reverse proxy listens on.
func checkCapability() {
	if os.Getuid() == 0 {
		return
	}

	hasBindCap := false
	if cv, err := cap.FromName("cap_net_bind_service"); err == nil {
		hasBindCap, _ = cap.GetProc().GetFlag(cap.Effective, cv)
	}

	if !hasBindCap {
		log.Printf("%sCAP_NET_BIND_SERVICE is missing; nginx may fail to bind ports < 1024",
			warnPrefix())
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
