///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - nginx.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
//
//nolint:godoclint,nolintlint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"syscall"
	"time"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	errConfigTest  = errors.New("configuration test failed")
	errReload      = errors.New("configuration reload failed")
	errStartup     = errors.New("nginx startup failed")
	errNotReady    = errors.New("nginx startup timeout")
	errChildExited = errors.New("nginx exited before becoming ready")
	errStartAbort  = errors.New("shutdown requested during nginx startup")
)

///////////////////////////////////////////////////////////////////////////////////////////////////

type nginxCommand struct {
	binary       string
	configPath   string
	errorLog     string
	readyMarker  string
	pollInterval time.Duration
	startTimeout time.Duration
	retries      int
	retryWait    time.Duration
	stdout       io.Writer
	stderr       io.Writer
}

///////////////////////////////////////////////////////////////////////////////////////////////////

type supervisedProcess struct {
	cmd    *exec.Cmd
	exited chan struct{}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (n *nginxCommand) baseArgs() []string {
	return []string{"-c", n.configPath, "-e", n.errorLog}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (n *nginxCommand) command(args ...string) *exec.Cmd {
	cmd := exec.Command(n.binary, append(n.baseArgs(), args...)...) //nolint:gosec
	cmd.Stdout = n.stdout
	cmd.Stderr = n.stderr

	return cmd
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// startAndAwaitReady spawns nginx in the foreground and polls for its pid file.  The
// returned process must eventually be terminated and awaited by the caller.
func (n *nginxCommand) startAndAwaitReady() (*supervisedProcess, error) {
	if err := os.Remove(n.readyMarker); err == nil {
		log.Printf("%sRemoved stale readiness marker %q",
			toolPrefix(), n.readyMarker)
	}

	log.Printf("%sSpawning %s",
		relayPrefix(), n.binary)

	cmd := n.command("-g", "daemon off;")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", errStartup, err)
	}

	p := &supervisedProcess{cmd: cmd, exited: make(chan struct{})}

	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()

	log.Printf("Waiting for nginx [PID %d]...",
		p.pid())

	deadline := time.Now().Add(n.startTimeout)
	ticker := time.NewTicker(n.pollInterval)

	defer ticker.Stop()

	for {
		if info, err := os.Stat(n.readyMarker); err == nil && info.Mode().IsRegular() {
			log.Printf("%snginx ready",
				greenDotPrefix())

			return p, nil
		}

		if sig, stop := shutdownRequested(); stop {
			p.terminate(sig)
			p.awaitExit()

			return nil, fmt.Errorf("%w: %s", errStartAbort, sig)
		}

		if time.Now().After(deadline) {
			p.terminate(syscall.SIGTERM)
			p.awaitExit()

			return nil, fmt.Errorf("%w: %q did not appear within %s",
				errNotReady, n.readyMarker, n.startTimeout)
		}

		select {
		case <-p.exited:
			return nil, fmt.Errorf("%w: %s", errChildExited, cmd.ProcessState)

		case <-ticker.C:
		}
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (n *nginxCommand) runVerb(args ...string) error {
	cmd := n.command(args...)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("exited with non-zero exit code %d",
				exitErr.ExitCode())
		}

		return fmt.Errorf("could not execute %s: %w", n.binary, err)
	}

	return nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// testAndReload validates the on-disk configuration and only then asks the running
// nginx to reload it.  A failed test leaves the running configuration untouched.
func (n *nginxCommand) testAndReload(trigger reloadEvent) error {
	log.Printf("%sValidating new configuration due to %s",
		blueDotPrefix(), trigger)

	configTestsTotal.Add(1)

	if err := n.runVerb("-t"); err != nil {
		configTestFailuresTotal.Add(1)
		log.Printf("%snginx -t %v; keeping current configuration",
			warnPrefix(), err)

		return fmt.Errorf("%w: %w", errConfigTest, err)
	}

	var err error

	for attempt := 0; attempt <= n.retries; attempt++ {
		if attempt > 0 {
			log.Printf("%sRetry attempt %d of nginx -s reload",
				toolPrefix(), attempt)
			time.Sleep(n.retryWait)
		}

		reloadsTotal.Add(1)

		err = n.runVerb("-s", "reload")
		if err == nil {
			recordReload(trigger)
			log.Printf("%sReloaded nginx configuration",
				greenDotPrefix())

			return nil
		}

		reloadFailuresTotal.Add(1)
		log.Printf("%snginx -s reload %v",
			alertPrefix(), err)
	}

	return fmt.Errorf("%w: %w", errReload, err)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (p *supervisedProcess) pid() int {
	return p.cmd.Process.Pid
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// terminate ignores delivery failures; the process may already be gone.
func (p *supervisedProcess) terminate(sig syscall.Signal) {
	_ = p.cmd.Process.Signal(sig)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (p *supervisedProcess) awaitExit() {
	<-p.exited
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
