///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - database_test.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestCountersPersist(t *testing.T) { //nolint:paralleltest
	saved := dbPath

	defer func() {
		dbPath = saved

		for _, c := range counters {
			c.lifetime.Store(0)
		}
	}()

	dbPath = filepath.Join(t.TempDir(), "floxy.db")

	if err := initDB(); err != nil {
		t.Fatalf("initDB failed: %v",
			err)
	}

	reloadsTotal.Add(3)
	want := reloadsTotal.Load()

	recordReload(reloadEvent{kind: fileCreated, path: "servers/a.conf"})
	closeDB()

	if db != nil {
		t.Fatalf("closeDB did not reset the handle")
	}

	for _, c := range counters {
		c.lifetime.Store(0)
	}

	if err := initDB(); err != nil {
		t.Fatalf("initDB (reopen) failed: %v",
			err)
	}

	var lifetime uint64

	for _, c := range counters {
		if c.current == &reloadsTotal {
			lifetime = c.lifetime.Load()
		}
	}

	if lifetime != want {
		t.Errorf("Persisted reloadsTotal = %d, want %d",
			lifetime, want)
	}

	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(metaBucketName)
		if b == nil {
			t.Fatalf("Missing meta bucket")
		}

		if got := string(b.Get(lastReloadCauseKey)); got != "created servers/a.conf" {
			t.Errorf("Last reload cause = %q",
				got)
		}

		if got := string(b.Get(shutdownMarkerKey)); got != "0" {
			t.Errorf("Shutdown marker while open = %q, want \"0\"",
				got)
		}

		return nil
	})
	if err != nil {
		t.Errorf("View failed: %v",
			err)
	}

	closeDB()
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestInitDBDisabled(t *testing.T) { //nolint:paralleltest
	saved := dbPath

	defer func() { dbPath = saved }()

	dbPath = ""

	if err := initDB(); err != nil || db != nil {
		t.Errorf("initDB without a path = (%v, %v)",
			db, err)
	}

	recordReload(reloadEvent{kind: treeResync, path: "/"})
	closeDB()
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestSetDbLogLevel(t *testing.T) { //nolint:paralleltest
	defer func() { currentDbLogLevel = LogError }()

	for in, want := range map[string]LogLevel{
		"none": LogNone, "WARN": LogWarning, "debug": LogDebug, "4": LogWarning,
	} {
		if err := SetDbLogLevel(in); err != nil || currentDbLogLevel != want {
			t.Errorf("SetDbLogLevel(%q) = %v, level %d",
				in, err, currentDbLogLevel)
		}
	}

	for _, in := range []string{"7", "-1", "loud"} {
		if err := SetDbLogLevel(in); err == nil {
			t.Errorf("SetDbLogLevel(%q) accepted",
				in)
		}
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
