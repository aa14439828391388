//go:build linux

///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - signals_linux.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
//
//nolint:godoclint,nolintlint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// signalGate turns asynchronous signal delivery into a readable descriptor.  The shutdown
// state is always stored before the eventfd is written, so a poller that observes the
// descriptor as readable is guaranteed to observe the state as well.
type signalGate struct {
	sigChan   chan os.Signal
	done      chan struct{}
	wg        sync.WaitGroup
	wakeFd    int
	closeOnce sync.Once
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func installSignalGate() (*signalGate, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("could not create wakeup eventfd: %w", err)
	}

	g := &signalGate{
		sigChan: make(chan os.Signal, 8),
		done:    make(chan struct{}),
		wakeFd:  fd,
	}

	signal.Notify(g.sigChan, append([]os.Signal{syscall.SIGHUP}, terminationSignals...)...)

	g.wg.Add(1)

	go g.run()

	return g, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (g *signalGate) run() {
	defer g.wg.Done()

	for {
		select {
		case <-g.done:
			return

		case s := <-g.sigChan:
			g.deliver(s)
		}
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (g *signalGate) deliver(s os.Signal) {
	if handleSignal(s) {
		g.wake()
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (g *signalGate) wake() {
	var buf [8]byte

	binary.NativeEndian.PutUint64(buf[:], 1)

	// EAGAIN means the counter is saturated, which is still readable.
	_, err := unix.Write(g.wakeFd, buf[:])
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		log.Printf("%sCould not write wakeup eventfd: %v",
			warnPrefix(), err)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (g *signalGate) drain() {
	var buf [8]byte

	_, err := unix.Read(g.wakeFd, buf[:])
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		log.Printf("%sCould not drain wakeup eventfd: %v",
			warnPrefix(), err)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (g *signalGate) Close() {
	g.closeOnce.Do(func() {
		signal.Stop(g.sigChan)
		close(g.done)
		g.wg.Wait()

		if err := unix.Close(g.wakeFd); err != nil {
			log.Printf("%sCould not close wakeup eventfd: %v",
				warnPrefix(), err)
		}
	})
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
