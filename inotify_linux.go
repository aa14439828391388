//go:build linux

///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - inotify_linux.go
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
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

const (
	watchMask         = unix.IN_CLOSE_WRITE | unix.IN_DELETE
	inotifyBufferSize = 64 * (unix.SizeofInotifyEvent + unix.NAME_MAX + 1)
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var maskNames = []struct {
	bit  uint32
	name string
}{
	{unix.IN_ACCESS, "IN_ACCESS"},
	{unix.IN_MODIFY, "IN_MODIFY"},
	{unix.IN_ATTRIB, "IN_ATTRIB"},
	{unix.IN_CLOSE_WRITE, "IN_CLOSE_WRITE"},
	{unix.IN_CLOSE_NOWRITE, "IN_CLOSE_NOWRITE"},
	{unix.IN_OPEN, "IN_OPEN"},
	{unix.IN_MOVED_FROM, "IN_MOVED_FROM"},
	{unix.IN_MOVED_TO, "IN_MOVED_TO"},
	{unix.IN_CREATE, "IN_CREATE"},
	{unix.IN_DELETE, "IN_DELETE"},
	{unix.IN_DELETE_SELF, "IN_DELETE_SELF"},
	{unix.IN_MOVE_SELF, "IN_MOVE_SELF"},
	{unix.IN_UNMOUNT, "IN_UNMOUNT"},
	{unix.IN_Q_OVERFLOW, "IN_Q_OVERFLOW"},
	{unix.IN_IGNORED, "IN_IGNORED"},
	{unix.IN_ISDIR, "IN_ISDIR"},
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Maps watch descriptors to the subdirectory they watch; never modified after setup.
type watchTable map[int32]string

///////////////////////////////////////////////////////////////////////////////////////////////////

type rawEvent struct {
	wd   int32
	mask uint32
	name string
}

///////////////////////////////////////////////////////////////////////////////////////////////////

type watcher struct {
	fd        int
	gate      *signalGate
	table     watchTable
	timeoutMs int
	buf       []byte
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func maskString(mask uint32) string {
	var parts []string

	for _, m := range maskNames {
		if mask&m.bit != 0 {
			parts = append(parts, m.name)
		}
	}

	if len(parts) == 0 {
		return fmt.Sprintf("0x%x", mask)
	}

	return strings.Join(parts, "|")
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// establishWatches watches every fixed subdirectory below sharedRoot.  Both watches must
// succeed; a partial watch set is returned as an error.
func establishWatches(sharedRoot string, gate *signalGate, timeout time.Duration) (*watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("could not initialize inotify: %w", err)
	}

	w := &watcher{
		fd:        fd,
		gate:      gate,
		table:     make(watchTable, len(confSubdirs)),
		timeoutMs: -1,
		buf:       make([]byte, inotifyBufferSize),
	}

	if timeout > 0 {
		w.timeoutMs = max(1, int(timeout.Milliseconds()))
	}

	for _, dir := range confSubdirs {
		p := filepath.Join(sharedRoot, dir)
		log.Printf("%sAdding inotify watch for %q",
			toolPrefix(), p)

		wd, err := unix.InotifyAddWatch(fd, p, watchMask)
		if err != nil {
			_ = unix.Close(fd)

			return nil, fmt.Errorf("could not watch %q: %w", p, err)
		}

		w.table[int32(wd)] = dir //nolint:gosec
	}

	return w, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// waitForEvents blocks until inotify has events, the signal gate is woken, or the timeout
// expires.  A pending shutdown always wins over pending events.
func (w *watcher) waitForEvents() ([]rawEvent, bool, error) {
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}} //nolint:gosec

	if w.gate != nil {
		fds = append(fds, unix.PollFd{Fd: int32(w.gate.wakeFd), Events: unix.POLLIN}) //nolint:gosec
	}

	n, err := unix.Poll(fds, w.timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			_, stop := shutdownRequested()

			return nil, stop, nil
		}

		return nil, false, fmt.Errorf("could not poll inotify events: %w", err)
	}

	if w.gate != nil && fds[1].Revents&unix.POLLIN != 0 {
		w.gate.drain()
	}

	if _, stop := shutdownRequested(); stop {
		return nil, true, nil
	}

	if n == 0 || fds[0].Revents&unix.POLLIN == 0 {
		return nil, false, nil
	}

	events, err := w.readEvents()

	return events, false, err
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (w *watcher) readEvents() ([]rawEvent, error) {
	n, err := unix.Read(w.fd, w.buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return nil, nil
		}

		return nil, fmt.Errorf("could not read inotify events: %w", err)
	}

	return parseEvents(w.buf[:n])
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func parseEvents(buf []byte) ([]rawEvent, error) {
	var events []rawEvent

	offset := 0

	for offset+unix.SizeofInotifyEvent <= len(buf) {
		hdr := buf[offset : offset+unix.SizeofInotifyEvent]
		nameLen := int(binary.NativeEndian.Uint32(hdr[12:16]))
		end := offset + unix.SizeofInotifyEvent + nameLen

		if end > len(buf) {
			return events, fmt.Errorf("truncated inotify event at offset %d", offset)
		}

		events = append(events, rawEvent{
			wd:   int32(binary.NativeEndian.Uint32(hdr[0:4])), //nolint:gosec
			mask: binary.NativeEndian.Uint32(hdr[4:8]),
			name: strings.TrimRight(string(buf[offset+unix.SizeofInotifyEvent:end]), "\x00"),
		})

		offset = end
	}

	return events, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// translateEvent resolves a raw event against the watch table.  Directory events yield
// ok == false; anything other than a file close-after-write or delete is reported as
// errUnexpectedEvent.
func translateEvent(table watchTable, ev rawEvent) (reloadEvent, bool, error) {
	dir, known := table[ev.wd]
	if !known {
		return reloadEvent{}, false, fmt.Errorf("%w: unknown watch descriptor %d (%s)",
			errUnexpectedEvent, ev.wd, maskString(ev.mask))
	}

	if ev.name == "" {
		return reloadEvent{}, false, fmt.Errorf("%w: event without file name on %q (%s)",
			errUnexpectedEvent, dir, maskString(ev.mask))
	}

	path := filepath.Join(dir, ev.name)
	isDir := ev.mask&unix.IN_ISDIR != 0

	switch {
	case ev.mask&unix.IN_CLOSE_WRITE != 0:
		if isDir {
			return reloadEvent{}, false, nil
		}

		return reloadEvent{kind: fileCreated, path: path}, true, nil

	case ev.mask&unix.IN_DELETE != 0:
		if isDir {
			return reloadEvent{}, false, nil
		}

		return reloadEvent{kind: fileDeleted, path: path}, true, nil
	}

	return reloadEvent{}, false, fmt.Errorf("%w: %s on %q",
		errUnexpectedEvent, maskString(ev.mask), path)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (w *watcher) Close() {
	if err := unix.Close(w.fd); err != nil {
		log.Printf("%sCould not close inotify descriptor: %v",
			warnPrefix(), err)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
