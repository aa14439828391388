///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - console.go
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
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	consoleLog        string
	isConsoleLogQuiet bool
	consoleLogFile    *os.File
	consoleLogPath    string
	consoleLogMutex   sync.Mutex
	logDir            string
	logPerm           uint = 0o600
	logDirPerm        uint = 0o750
	compressAlgo      string
	compressLevel     string
	noCompress        bool
	consoleStop       = make(chan struct{})
	consoleStopOnce   sync.Once
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var compressExtensions = map[string]string{
	"gzip": ".gz",
	"lzip": ".lz",
	"xz":   ".xz",
	"zstd": ".zst",
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func getConsoleLogPath(t time.Time) string {
	return filepath.Join(
		logDir,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
		"console.log",
	)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func setupConsoleLogging() error {
	if consoleLog == "" {
		return nil
	}

	if err := rotateConsoleLogAt(time.Now()); err != nil {
		return err
	}

	go func() {
		for {
			now := time.Now()
			nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1,
				0, 0, 0, 0, now.Location())

			select {
			case <-consoleStop:
				return

			case <-time.After(time.Until(nextMidnight)):
				if err := rotateConsoleLogAt(time.Now()); err != nil {
					log.Printf("%sConsole log rotation failed: %v",
						warnPrefix(), err)
				}
			}
		}
	}()

	return nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// rotateConsoleLogAt switches the log output to the console log for t's date and
// compresses the file it replaces.
func rotateConsoleLogAt(t time.Time) error {
	consoleLogMutex.Lock()

	defer consoleLogMutex.Unlock()

	logPath := getConsoleLogPath(t)
	if consoleLogFile != nil && logPath == consoleLogPath {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), os.FileMode(logDirPerm)); err != nil { //nolint:gosec
		return fmt.Errorf("failed to create console log directory: %w", err)
	}

	f, err := os.OpenFile(logPath,
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, os.FileMode(logPerm)) //nolint:gosec
	if err != nil {
		return fmt.Errorf("failed to open console log file: %w", err)
	}

	var out io.Writer = &emojiStripperWriter{w: f}
	if !isConsoleLogQuiet {
		out = io.MultiWriter(os.Stderr, out)
	}

	log.SetOutput(out)

	previous, previousPath := consoleLogFile, consoleLogPath
	consoleLogFile, consoleLogPath = f, logPath

	if previous != nil {
		if err := previous.Close(); err != nil {
			log.Printf("%sError closing console log file: %v",
				warnPrefix(), err)
		}

		if !noCompress {
			compressLogFile(previousPath)
		}
	}

	return nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func closeConsoleLogging() {
	consoleStopOnce.Do(func() { close(consoleStop) })

	consoleLogMutex.Lock()

	defer consoleLogMutex.Unlock()

	if consoleLogFile == nil {
		return
	}

	log.SetOutput(os.Stderr)

	if err := consoleLogFile.Close(); err != nil {
		log.Printf("%sError closing console log file: %v",
			warnPrefix(), err)
	}

	consoleLogFile, consoleLogPath = nil, ""
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func newCompressWriter(w io.Writer) (io.WriteCloser, error) {
	switch compressAlgo {
	case "gzip":
		level := gzip.DefaultCompression

		switch compressLevel {
		case "fast":
			level = gzip.BestSpeed

		case "high":
			level = gzip.BestCompression
		}

		return gzip.NewWriterLevel(w, level)

	case "zstd":
		level := zstd.SpeedDefault

		switch compressLevel {
		case "fast":
			level = zstd.SpeedFastest

		case "high":
			level = zstd.SpeedBestCompression
		}

		return zstd.NewWriter(w, zstd.WithEncoderLevel(level))

	case "xz":
		return xz.NewWriter(w)

	case "lzip":
		return lzip.NewWriter(w), nil
	}

	return nil, fmt.Errorf("unknown compression algorithm: %s", compressAlgo)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// compressLogFile replaces logFilePath with a compressed copy.  The original is kept
// if anything goes wrong.
func compressLogFile(logFilePath string) {
	in, err := os.Open(logFilePath) //nolint:gosec
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("%sFailed to open log %q for compression: %v",
				warnPrefix(), logFilePath, err)
		}

		return
	}

	defer func() { _ = in.Close() }()

	compressedFilePath := logFilePath + compressExtensions[compressAlgo]

	out, err := os.OpenFile(compressedFilePath,
		os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(logPerm)) //nolint:gosec
	if err != nil {
		log.Printf("%sFailed to create compressed file %q: %v",
			warnPrefix(), compressedFilePath, err)

		return
	}

	writer, err := newCompressWriter(out)
	if err != nil {
		log.Printf("%sError creating %s writer for %q: %v",
			warnPrefix(), compressAlgo, compressedFilePath, err)
		_ = out.Close()
		_ = os.Remove(compressedFilePath)

		return
	}

	if _, err := io.Copy(writer, in); err != nil {
		log.Printf("%sError writing to compressed file %q: %v",
			warnPrefix(), compressedFilePath, err)
		_ = writer.Close()
		_ = out.Close()
		_ = os.Remove(compressedFilePath)

		return
	}

	if err := writer.Close(); err != nil {
		log.Printf("%sError closing writer for %q: %v",
			warnPrefix(), compressedFilePath, err)
		_ = out.Close()
		_ = os.Remove(compressedFilePath)

		return
	}

	if err := out.Close(); err != nil {
		log.Printf("%sError closing compressed file %q: %v",
			warnPrefix(), compressedFilePath, err)
		_ = os.Remove(compressedFilePath)

		return
	}

	if err := os.Remove(logFilePath); err != nil {
		log.Printf("%sError removing original log %q after compression: %v",
			warnPrefix(), logFilePath, err)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
