//go:build linux

///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - supervisor.go
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
	"log"
	"syscall"
	"time"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	errUnexpectedEvent = errors.New("unexpected inotify event")
	errWaitFailing     = errors.New("waiting for inotify events keeps failing")
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	waitErrorBackoff         = 100 * time.Millisecond
	maxConsecutiveWaitErrors = 10
)

///////////////////////////////////////////////////////////////////////////////////////////////////

type eventPolicy int

///////////////////////////////////////////////////////////////////////////////////////////////////

const (
	policyAbort eventPolicy = iota
	policyIgnore
)

///////////////////////////////////////////////////////////////////////////////////////////////////

func parseEventPolicy(s string) (eventPolicy, error) {
	switch s {
	case "abort":
		return policyAbort, nil

	case "ignore":
		return policyIgnore, nil
	}

	return policyAbort, fmt.Errorf("invalid unexpected event policy %q; "+
		"specify \"abort\" or \"ignore\"", s)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

type eventSource interface {
	waitForEvents() ([]rawEvent, bool, error)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

type reloader interface {
	testAndReload(trigger reloadEvent) error
}

///////////////////////////////////////////////////////////////////////////////////////////////////

type supervisor struct {
	source     eventSource
	table      watchTable
	mirror     *configMirror
	proxy      reloader
	unexpected eventPolicy
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// run processes events until shutdown is requested and returns the requesting signal.
// An error is returned only for conditions that must terminate the supervisor.
func (s *supervisor) run() (syscall.Signal, error) {
	failures := 0

	for {
		if sig, stop := shutdownRequested(); stop {
			return sig, nil
		}

		if resyncRequested.Swap(false) {
			s.resync()
		}

		events, stop, err := s.source.waitForEvents()
		if err != nil {
			waitErrorsTotal.Add(1)
			log.Printf("%s%v",
				warnPrefix(), err)

			failures++
			if failures >= maxConsecutiveWaitErrors {
				return 0, fmt.Errorf("%w: %d times in a row: %w",
					errWaitFailing, failures, err)
			}

			time.Sleep(waitErrorBackoff)

			continue
		}

		failures = 0

		if stop {
			continue
		}

		if err := s.dispatch(events); err != nil {
			return 0, err
		}
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// dispatch handles one batch in order, with at most one mirror and reload in flight.
func (s *supervisor) dispatch(events []rawEvent) error {
	for _, raw := range events {
		ev, ok, err := translateEvent(s.table, raw)
		if err != nil {
			unexpectedEventsTotal.Add(1)

			if s.unexpected == policyAbort {
				return err
			}

			log.Printf("%sIgnoring %v",
				alertPrefix(), err)

			continue
		}

		if !ok {
			continue
		}

		log.Printf("Received inotify event: %s (%s)",
			ev, maskString(raw.mask))

		if err := s.mirror.apply(ev); err != nil {
			log.Printf("%s%v",
				errorPrefix(), err)

			continue
		}

		_ = s.proxy.testAndReload(ev)
	}

	return nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// resync re-runs the bootstrap copy, ie. after SIGHUP, and reloads once.
func (s *supervisor) resync() {
	log.Printf("%sSIGHUP received: Resynchronizing configuration.",
		bellPrefix())

	if err := s.mirror.bootstrap(); err != nil {
		log.Printf("%sResync failed: %v",
			errorPrefix(), err)

		return
	}

	_ = s.proxy.testAndReload(reloadEvent{kind: treeResync, path: s.mirror.sharedRoot})
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
