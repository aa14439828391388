///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - mirror.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
//
//nolint:godoclint,nolintlint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// The watched subdirectories.  Watched directories are assumed to be flat.
var confSubdirs = [...]string{"instances", "servers"}

///////////////////////////////////////////////////////////////////////////////////////////////////

type reloadKind int

///////////////////////////////////////////////////////////////////////////////////////////////////

const (
	fileCreated reloadKind = iota
	fileDeleted
	treeResync
)

///////////////////////////////////////////////////////////////////////////////////////////////////

func (k reloadKind) String() string {
	switch k {
	case fileCreated:
		return "created"

	case fileDeleted:
		return "deleted"

	case treeResync:
		return "resync"
	}

	return fmt.Sprintf("reloadKind(%d)", int(k))
}

///////////////////////////////////////////////////////////////////////////////////////////////////

type reloadEvent struct {
	kind reloadKind
	path string // Relative to the configuration roots
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (e reloadEvent) String() string {
	return fmt.Sprintf("%s %s", e.kind, e.path)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

type configMirror struct {
	sharedRoot  string
	privateRoot string
	dirPerm     os.FileMode
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (m *configMirror) createSubdirs(root string) error {
	for _, dir := range confSubdirs {
		p := filepath.Join(root, dir)

		if err := os.MkdirAll(p, m.dirPerm); err != nil {
			return fmt.Errorf("could not create conf directory %q: %w", p, err)
		}

		log.Printf("Created conf directory %q", p)
	}

	return nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// bootstrap always starts the private tree from scratch, never touches existing shared
// content, and copies what the shared tree holds right now.
func (m *configMirror) bootstrap() error {
	if err := os.RemoveAll(m.privateRoot); err != nil {
		log.Printf("%sCould not remove %q: %v",
			warnPrefix(), m.privateRoot, err)
	}

	if err := m.createSubdirs(m.privateRoot); err != nil {
		return err
	}

	if err := m.createSubdirs(m.sharedRoot); err != nil {
		return err
	}

	m.copyTree(m.sharedRoot, m.privateRoot)

	return nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (m *configMirror) copyTree(from, to string) {
	log.Printf("Copying %q to %q", from, to)

	entries, err := os.ReadDir(from)
	if err != nil {
		bootstrapErrorsTotal.Add(1)
		log.Printf("%sCould not read directory %q: %v",
			warnPrefix(), from, err)

		return
	}

	for _, entry := range entries {
		src := filepath.Join(from, entry.Name())
		dst := filepath.Join(to, entry.Name())

		if entry.IsDir() {
			if err := os.MkdirAll(dst, m.dirPerm); err != nil {
				bootstrapErrorsTotal.Add(1)
				log.Printf("%sCould not create directory %q: %v",
					warnPrefix(), dst, err)

				continue
			}

			m.copyTree(src, dst)

			continue
		}

		if !isRegularTarget(entry, src) {
			log.Printf("%sSkipping %q: not a regular file",
				warnPrefix(), src)

			continue
		}

		if err := copyFileAtomic(src, dst); err != nil {
			bootstrapErrorsTotal.Add(1)
			log.Printf("%sCould not copy %q to %q: %v",
				warnPrefix(), src, dst, err)

			continue
		}

		mirrorCopiesTotal.Add(1)
		log.Printf("Copied %q to %q", src, dst)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// isRegularTarget reports whether entry is a regular file or a symlink to one.  Links to
// directories are not followed.
func isRegularTarget(entry os.DirEntry, path string) bool {
	if entry.Type().IsRegular() {
		return true
	}

	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}

	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// apply mirrors a single change.  A returned error means the private tree may not match
// the shared tree for this path and no reload should follow.
func (m *configMirror) apply(ev reloadEvent) error {
	src := filepath.Join(m.sharedRoot, ev.path)
	dst := filepath.Join(m.privateRoot, ev.path)

	switch ev.kind {
	case fileCreated:
		if err := copyFileAtomic(src, dst); err != nil {
			mirrorErrorsTotal.Add(1)

			return fmt.Errorf("could not copy %q to %q: %w", src, dst, err)
		}

		mirrorCopiesTotal.Add(1)

	case fileDeleted:
		if err := os.Remove(dst); err != nil {
			mirrorErrorsTotal.Add(1)

			return fmt.Errorf("could not remove %q: %w", dst, err)
		}

		mirrorRemovesTotal.Add(1)

	default:
		return fmt.Errorf("unknown event kind %s for %q", ev.kind, ev.path)
	}

	return nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// copyFileAtomic writes src to a temporary file beside dst and renames it into place.
func copyFileAtomic(src, dst string) (err error) {
	in, err := os.Open(src) //nolint:gosec
	if err != nil {
		return err
	}

	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if info.IsDir() {
		return fmt.Errorf("%q is a directory", src)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		return err
	}

	if err = tmp.Chmod(info.Mode().Perm()); err != nil {
		return err
	}

	if err = tmp.Sync(); err != nil {
		return err
	}

	if err = tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, dst)
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
