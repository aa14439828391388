//go:build linux

///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - supervisor_linux_test.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/sys/unix"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

type recordingReloader struct {
	mu       sync.Mutex
	triggers []reloadEvent
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (r *recordingReloader) testAndReload(trigger reloadEvent) error {
	r.mu.Lock()

	defer r.mu.Unlock()

	r.triggers = append(r.triggers, trigger)

	return nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (r *recordingReloader) seen() []reloadEvent {
	r.mu.Lock()

	defer r.mu.Unlock()

	return append([]reloadEvent(nil), r.triggers...)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

type scriptedSource struct {
	batches [][]rawEvent
	errs    []error
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (s *scriptedSource) waitForEvents() ([]rawEvent, bool, error) {
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]

		return nil, false, err
	}

	if len(s.batches) > 0 {
		b := s.batches[0]
		s.batches = s.batches[1:]

		return b, false, nil
	}

	handleSignal(syscall.SIGTERM)

	return nil, true, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s",
				what)
		}

		time.Sleep(10 * time.Millisecond)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

type loopFixture struct {
	gate   *signalGate
	mirror *configMirror
	proxy  *nginxCommand
	argv   string
	done   chan struct{}
	sig    syscall.Signal
	err    error
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// startLoop bootstraps a mirror over a fresh tree and runs the supervisor against a fake
// nginx until the returned fixture is stopped.
func startLoop(t *testing.T, f fakeNginx, seed map[string]string) *loopFixture {
	t.Helper()

	resetSignalState(t)

	root := t.TempDir()
	m := &configMirror{
		sharedRoot:  filepath.Join(root, "shared"),
		privateRoot: filepath.Join(root, "private"),
		dirPerm:     0o755,
	}

	for name, content := range seed {
		writeFile(t, filepath.Join(m.sharedRoot, name), content, 0o644)
	}

	if err := m.bootstrap(); err != nil {
		t.Fatalf("bootstrap failed: %v",
			err)
	}

	gate := newTestGate(t)

	w, err := establishWatches(m.sharedRoot, gate, 0)
	if err != nil {
		t.Fatalf("establishWatches failed: %v",
			err)
	}

	t.Cleanup(w.Close)

	proxy, argv := newFakeNginx(t, f)

	lf := &loopFixture{gate: gate, mirror: m, proxy: proxy, argv: argv, done: make(chan struct{})}

	sup := &supervisor{source: w, table: w.table, mirror: m, proxy: proxy}

	go func() {
		defer close(lf.done)

		lf.sig, lf.err = sup.run()
	}()

	return lf
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (lf *loopFixture) stop(t *testing.T) {
	t.Helper()

	lf.gate.deliver(syscall.SIGTERM)

	select {
	case <-lf.done:

	case <-time.After(5 * time.Second):
		t.Fatalf("Supervisor did not stop")
	}

	if lf.err != nil || lf.sig != syscall.SIGTERM {
		t.Errorf("run returned (%v, %v), want (SIGTERM, nil)",
			lf.sig, lf.err)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (lf *loopFixture) verbs(t *testing.T) []string {
	t.Helper()

	var verbs []string

	for _, line := range readArgv(t, lf.argv) {
		switch {
		case strings.HasSuffix(line, " -t"):
			verbs = append(verbs, "test")

		case strings.HasSuffix(line, " -s reload"):
			verbs = append(verbs, "reload")
		}
	}

	return verbs
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestLoopCreateMirrorsAndReloads(t *testing.T) { //nolint:paralleltest
	lf := startLoop(t, fakeNginx{}, nil)

	writeFile(t, filepath.Join(lf.mirror.sharedRoot, "instances", "a.conf"), "X", 0o644)

	waitFor(t, "reload", func() bool { return len(lf.verbs(t)) == 2 })
	lf.stop(t)

	if got := readFile(t, filepath.Join(lf.mirror.privateRoot, "instances", "a.conf")); got != "X" {
		t.Errorf("Private instances/a.conf = %q, want \"X\"",
			got)
	}

	if got := strings.Join(lf.verbs(t), ","); got != "test,reload" {
		t.Errorf("Got verbs %s, want test,reload",
			got)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestLoopDeleteMirrorsAndReloads(t *testing.T) { //nolint:paralleltest
	lf := startLoop(t, fakeNginx{}, map[string]string{"servers/b.conf": "server b;\n"})

	private := filepath.Join(lf.mirror.privateRoot, "servers", "b.conf")
	if got := readFile(t, private); got != "server b;\n" {
		t.Fatalf("Bootstrap did not mirror servers/b.conf: %q",
			got)
	}

	if err := os.Remove(filepath.Join(lf.mirror.sharedRoot, "servers", "b.conf")); err != nil {
		t.Fatalf("Remove failed: %v",
			err)
	}

	waitFor(t, "reload", func() bool { return len(lf.verbs(t)) == 2 })
	lf.stop(t)

	if _, err := os.Stat(private); !os.IsNotExist(err) {
		t.Errorf("Private servers/b.conf still exists")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestLoopFailedTestNeverReloads(t *testing.T) { //nolint:paralleltest
	lf := startLoop(t, fakeNginx{testRC: 1}, map[string]string{"servers/c.conf": "good;\n"})

	writeFile(t, filepath.Join(lf.mirror.sharedRoot, "servers", "c.conf"), "bad {\n", 0o644)

	waitFor(t, "configuration test", func() bool { return len(lf.verbs(t)) >= 1 })
	lf.stop(t)

	if got := strings.Join(lf.verbs(t), ","); got != "test" {
		t.Errorf("Got verbs %s, want test",
			got)
	}

	if got := readFile(t, filepath.Join(lf.mirror.privateRoot, "servers", "c.conf")); got != "bad {\n" {
		t.Errorf("Private mirror does not reflect the edit: %q",
			got)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestLoopShutdownForwardsSignal(t *testing.T) { //nolint:paralleltest
	defer goleak.VerifyNone(t, signalLeakOption)

	lf := startLoop(t, fakeNginx{}, nil)

	child, err := lf.proxy.startAndAwaitReady()
	if err != nil {
		t.Fatalf("startAndAwaitReady failed: %v",
			err)
	}

	lf.stop(t)

	child.terminate(lf.sig)
	child.awaitExit()

	ws, ok := child.cmd.ProcessState.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() || ws.Signal() != syscall.SIGTERM {
		t.Errorf("Child did not receive SIGTERM: %v",
			child.cmd.ProcessState)
	}

	if verbs := lf.verbs(t); len(verbs) != 0 {
		t.Errorf("Mirror or reload activity during shutdown: %v",
			verbs)
	}

	lf.gate.Close()
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestLoopResyncOnHangup(t *testing.T) { //nolint:paralleltest
	lf := startLoop(t, fakeNginx{}, nil)

	// The private tree is not watched; only a resync discards this file.
	writeFile(t, filepath.Join(lf.mirror.privateRoot, "servers", "stray.conf"), "stray;\n", 0o644)

	lf.gate.deliver(syscall.SIGHUP)

	waitFor(t, "resync reload", func() bool { return len(lf.verbs(t)) == 2 })
	lf.stop(t)

	if _, err := os.Stat(filepath.Join(lf.mirror.privateRoot, "servers", "stray.conf")); !os.IsNotExist(err) {
		t.Errorf("Resync did not rebuild the private tree")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestLoopDirectoryEventsIgnored(t *testing.T) { //nolint:paralleltest
	lf := startLoop(t, fakeNginx{}, nil)

	sub := filepath.Join(lf.mirror.sharedRoot, "instances", "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v",
			err)
	}

	if err := os.Remove(sub); err != nil {
		t.Fatalf("Rmdir failed: %v",
			err)
	}

	// Events are handled in order, so once this file is reloaded the directory events
	// have been seen.
	writeFile(t, filepath.Join(lf.mirror.sharedRoot, "servers", "marker.conf"), "m;\n", 0o644)

	waitFor(t, "reload", func() bool { return len(lf.verbs(t)) >= 2 })
	lf.stop(t)

	if got := strings.Join(lf.verbs(t), ","); got != "test,reload" {
		t.Errorf("Got verbs %s, want a single test,reload for the file",
			got)
	}

	if _, err := os.Stat(filepath.Join(lf.mirror.privateRoot, "instances", "sub")); !os.IsNotExist(err) {
		t.Errorf("Directory event was mirrored into the private tree")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestDispatchUnexpectedPolicy(t *testing.T) { //nolint:paralleltest
	m := newTestMirror(t)

	if err := m.bootstrap(); err != nil {
		t.Fatalf("bootstrap failed: %v",
			err)
	}

	writeFile(t, filepath.Join(m.sharedRoot, "servers", "ok.conf"), "ok;\n", 0o644)

	table := watchTable{1: "instances", 2: "servers"}
	batch := []rawEvent{
		{wd: 2, mask: unix.IN_MOVED_TO, name: "moved.conf"},
		{wd: 2, mask: unix.IN_CLOSE_WRITE, name: "ok.conf"},
	}

	r := &recordingReloader{}
	s := &supervisor{table: table, mirror: m, proxy: r, unexpected: policyAbort}

	if err := s.dispatch(batch); !errors.Is(err, errUnexpectedEvent) {
		t.Fatalf("Got %v, want errUnexpectedEvent under abort",
			err)
	}

	if len(r.seen()) != 0 {
		t.Errorf("Events after an unexpected one were processed under abort")
	}

	s.unexpected = policyIgnore

	if err := s.dispatch(batch); err != nil {
		t.Fatalf("Got %v under ignore",
			err)
	}

	want := reloadEvent{kind: fileCreated, path: filepath.Join("servers", "ok.conf")}
	if got := r.seen(); len(got) != 1 || got[0] != want {
		t.Errorf("Got triggers %v, want [%v]",
			got, want)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestDispatchSkipsReloadOnMirrorFailure(t *testing.T) { //nolint:paralleltest
	m := newTestMirror(t)

	if err := m.bootstrap(); err != nil {
		t.Fatalf("bootstrap failed: %v",
			err)
	}

	r := &recordingReloader{}
	s := &supervisor{table: watchTable{1: "instances"}, mirror: m, proxy: r}

	err := s.dispatch([]rawEvent{{wd: 1, mask: unix.IN_DELETE, name: "never-copied.conf"}})
	if err != nil {
		t.Fatalf("dispatch failed: %v",
			err)
	}

	if len(r.seen()) != 0 {
		t.Errorf("Reload attempted after a mirror failure")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func shortWaitBackoff(t *testing.T) {
	t.Helper()

	saved := waitErrorBackoff
	waitErrorBackoff = time.Millisecond

	t.Cleanup(func() { waitErrorBackoff = saved })
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestRunSurvivesWaitErrors(t *testing.T) { //nolint:paralleltest
	resetSignalState(t)
	shortWaitBackoff(t)

	before := waitErrorsTotal.Load()

	r := &recordingReloader{}
	s := &supervisor{
		source: &scriptedSource{errs: []error{errors.New("poll failed"), errors.New("again")}},
		mirror: newTestMirror(t),
		proxy:  r,
	}

	sig, err := s.run()
	if err != nil || sig != syscall.SIGTERM {
		t.Errorf("Got (%v, %v), want (SIGTERM, nil)",
			sig, err)
	}

	if got := waitErrorsTotal.Load() - before; got != 2 {
		t.Errorf("Counted %d wait errors, want 2",
			got)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestRunAbortsOnPersistentWaitErrors(t *testing.T) { //nolint:paralleltest
	resetSignalState(t)
	shortWaitBackoff(t)

	errs := make([]error, maxConsecutiveWaitErrors)
	for i := range errs {
		errs[i] = unix.EBADF
	}

	s := &supervisor{
		source: &scriptedSource{errs: errs},
		mirror: newTestMirror(t),
		proxy:  &recordingReloader{},
	}

	_, err := s.run()
	if !errors.Is(err, errWaitFailing) || !errors.Is(err, unix.EBADF) {
		t.Errorf("Got %v, want errWaitFailing wrapping EBADF",
			err)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestRunResyncReportsTrigger(t *testing.T) { //nolint:paralleltest
	resetSignalState(t)

	m := newTestMirror(t)
	writeFile(t, filepath.Join(m.sharedRoot, "instances", "i.conf"), "i;\n", 0o644)

	r := &recordingReloader{}
	s := &supervisor{source: &scriptedSource{}, mirror: m, proxy: r}

	resyncRequested.Store(true)

	if _, err := s.run(); err != nil {
		t.Fatalf("run failed: %v",
			err)
	}

	want := reloadEvent{kind: treeResync, path: m.sharedRoot}
	if got := r.seen(); len(got) != 1 || got[0] != want {
		t.Errorf("Got triggers %v, want [%v]",
			got, want)
	}

	if got := readFile(t, filepath.Join(m.privateRoot, "instances", "i.conf")); got != "i;\n" {
		t.Errorf("Resync did not copy instances/i.conf: %q",
			got)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestParseEventPolicy(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]eventPolicy{"abort": policyAbort, "ignore": policyIgnore} {
		got, err := parseEventPolicy(in)
		if err != nil || got != want {
			t.Errorf("parseEventPolicy(%q) = (%d, %v)",
				in, got, err)
		}
	}

	if _, err := parseEventPolicy("Abort"); err == nil {
		t.Errorf("Expected an error for an unknown policy")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
