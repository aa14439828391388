///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - database_common.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
//
//nolint:godoclint,nolintlint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	db                  *bbolt.DB
	dbPath              string
	dbPerm              uint = 0o600
	dbLogLevel          string
	persistedStartTime  time.Time
	metaBucketName      = []byte("meta")
	countersBucketName  = []byte("counters")
	shutdownMarkerKey   = []byte("shutdown-marker")
	initialStartTimeKey = []byte("initial-start-time")
	lastReloadTimeKey   = []byte("last-reload-time")
	lastReloadCauseKey  = []byte("last-reload-cause")
	currentDbLogLevel   = LogError
	startTime           = time.Now()
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	bootstrapErrorsTotal    atomic.Uint64
	configTestFailuresTotal atomic.Uint64
	configTestsTotal        atomic.Uint64
	mirrorCopiesTotal       atomic.Uint64
	mirrorErrorsTotal       atomic.Uint64
	mirrorRemovesTotal      atomic.Uint64
	reloadFailuresTotal     atomic.Uint64
	reloadsTotal            atomic.Uint64
	unexpectedEventsTotal   atomic.Uint64
	waitErrorsTotal         atomic.Uint64
)

///////////////////////////////////////////////////////////////////////////////////////////////////

type counter struct {
	name     string
	help     string
	current  *atomic.Uint64
	lifetime atomic.Uint64 // Loaded from the database; excludes this run
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (c *counter) total() uint64 {
	return c.lifetime.Load() + c.current.Load()
}

///////////////////////////////////////////////////////////////////////////////////////////////////

var counters = []*counter{
	{name: "bootstrapErrorsTotal", current: &bootstrapErrorsTotal,
		help: "Entries that could not be copied during bootstrap or resync"},
	{name: "configTestsTotal", current: &configTestsTotal,
		help: "Configuration tests run"},
	{name: "configTestFailuresTotal", current: &configTestFailuresTotal,
		help: "Configuration tests that failed"},
	{name: "mirrorCopiesTotal", current: &mirrorCopiesTotal,
		help: "Files copied into the private tree"},
	{name: "mirrorRemovesTotal", current: &mirrorRemovesTotal,
		help: "Files removed from the private tree"},
	{name: "mirrorErrorsTotal", current: &mirrorErrorsTotal,
		help: "Mirror operations that failed"},
	{name: "reloadsTotal", current: &reloadsTotal,
		help: "Reload commands run"},
	{name: "reloadFailuresTotal", current: &reloadFailuresTotal,
		help: "Reload commands that failed"},
	{name: "unexpectedEventsTotal", current: &unexpectedEventsTotal,
		help: "Inotify events with an unexpected mask or watch descriptor"},
	{name: "waitErrorsTotal", current: &waitErrorsTotal,
		help: "Failed waits for inotify events"},
}

///////////////////////////////////////////////////////////////////////////////////////////////////

const (
	LogNone    LogLevel = iota // 0
	LogPanic                   // 1
	LogFatal                   // 2
	LogError                   // 3
	LogWarning                 // 4
	LogInfo                    // 5
	LogDebug                   // 6
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var logLevelMap = map[string]LogLevel{
	"none":    LogNone,
	"panic":   LogPanic,
	"fatal":   LogFatal,
	"error":   LogError,
	"warn":    LogWarning,
	"warning": LogWarning,
	"info":    LogInfo,
	"debug":   LogDebug,
}

///////////////////////////////////////////////////////////////////////////////////////////////////

type LogLevel int

///////////////////////////////////////////////////////////////////////////////////////////////////

func SetDbLogLevel(level string) error {
	level = strings.ToLower(level)
	if l, ok := logLevelMap[level]; ok {
		currentDbLogLevel = l

		return nil
	}

	i, err := strconv.Atoi(level)
	if err == nil {
		if i >= int(LogNone) && i <= int(LogDebug) {
			currentDbLogLevel = LogLevel(i)

			return nil
		}
	}

	return fmt.Errorf("invalid database log level \"%s\"; specify 0 through 6, or,"+
		" \"none\", \"panic\", \"fatal\", \"error\", \"warning\", \"info\", or \"debug\"",
		level)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func logLevelEnabled(level LogLevel) bool {
	return level <= currentDbLogLevel
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// dbLogger adapts bbolt's logger interface to the console log.
type dbLogger struct{}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (l *dbLogger) logf(level LogLevel, prefix, format string, v ...any) {
	if !logLevelEnabled(level) {
		return
	}

	log.Printf(prefix+format, v...)
}

func (l *dbLogger) Debug(v ...any)  { l.logf(LogDebug, bugPrefix(), "%s", fmt.Sprint(v...)) }
func (l *dbLogger) Info(v ...any)   { l.logf(LogInfo, dbPrefix(), "%s", fmt.Sprint(v...)) }
func (l *dbLogger) Error(v ...any)  { l.logf(LogError, warnPrefix(), "%s", fmt.Sprint(v...)) }
func (l *dbLogger) Warning(v ...any) {
	l.logf(LogWarning, alertPrefix(), "%s", fmt.Sprint(v...))
}

func (l *dbLogger) Debugf(format string, v ...any)   { l.logf(LogDebug, bugPrefix(), format, v...) }
func (l *dbLogger) Infof(format string, v ...any)    { l.logf(LogInfo, dbPrefix(), format, v...) }
func (l *dbLogger) Errorf(format string, v ...any)   { l.logf(LogError, warnPrefix(), format, v...) }
func (l *dbLogger) Warningf(format string, v ...any) { l.logf(LogWarning, alertPrefix(), format, v...) }

///////////////////////////////////////////////////////////////////////////////////////////////////

func (l *dbLogger) Fatal(v ...any) {
	if logLevelEnabled(LogFatal) {
		fatalf("%s", fmt.Sprint(v...))
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (l *dbLogger) Fatalf(format string, v ...any) {
	if logLevelEnabled(LogFatal) {
		fatalf(format, v...)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (l *dbLogger) Panic(v ...any) {
	log.Panic(boomPrefix(), fmt.Sprint(v...))
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (l *dbLogger) Panicf(format string, v ...any) {
	log.Panicf(boomPrefix()+format, v...)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// initDB opens the statistics database, if one was configured, and loads lifetime counters.
func initDB() error {
	if dbPath == "" {
		return nil
	}

	log.Printf("%sOpening statistics database: %s",
		dbPrefix(), dbPath)

	options := &bbolt.Options{
		Timeout:      1 * time.Second,
		FreelistType: bbolt.FreelistMapType,
		Logger:       &dbLogger{},
	}

	var err error

	db, err = bbolt.Open(dbPath, os.FileMode(dbPerm), options) //nolint:gosec
	if err != nil {
		db = nil

		return fmt.Errorf("failed to open statistics database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(metaBucketName)
		if err != nil {
			return err
		}

		val := bucket.Get(shutdownMarkerKey)
		switch {
		case val == nil:
			log.Printf("%sNew statistics database.",
				dbPrefix())

		case bytes.Equal(val, []byte("0")):
			log.Printf("%sUnclean shutdown detected!",
				warnPrefix())

		default:
			t, err := time.Parse(time.RFC3339, string(val))
			if err != nil {
				log.Printf("%sUnable to parse clean shutdown marker date '%s'.",
					warnPrefix(), string(val))
			} else {
				log.Printf("%sLast clean shutdown %s.",
					dbPrefix(), t.Format("2006-Jan-02 15:04:05"))
			}
		}

		startTimeVal := bucket.Get(initialStartTimeKey)
		if startTimeVal == nil {
			if err := bucket.Put(initialStartTimeKey,
				[]byte(startTime.Format(time.RFC3339))); err != nil {
				return err
			}

			persistedStartTime = startTime
		} else {
			pStartTime, err := time.Parse(time.RFC3339, string(startTimeVal))
			if err != nil {
				log.Printf("%sFailed to parse persisted start time: %v",
					warnPrefix(), err)
				persistedStartTime = startTime
			} else {
				persistedStartTime = pStartTime
			}
		}

		return bucket.Put(shutdownMarkerKey, []byte("0"))
	})
	if err != nil {
		log.Printf("%sFailed to initialize database metadata: %v",
			errorPrefix(), err)
	}

	loadCountersFromDB()

	return nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func writeCountersToDB() {
	if db == nil {
		return
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(countersBucketName)
		if err != nil {
			return err
		}

		for _, c := range counters {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, c.total())

			if err := bucket.Put([]byte(c.name), buf); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		log.Printf("%sFailed to write counters to database: %v",
			errorPrefix(), err)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func loadCountersFromDB() {
	if db == nil {
		return
	}

	err := db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(countersBucketName)
		if bucket == nil {
			return nil
		}

		for _, c := range counters {
			data := bucket.Get([]byte(c.name))
			if len(data) == 8 {
				c.lifetime.Store(binary.BigEndian.Uint64(data))
			}
		}

		return nil
	})
	if err != nil {
		log.Printf("%sFailed to load counters from database: %v",
			errorPrefix(), err)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// recordReload remembers when, and why, nginx last reloaded successfully.
func recordReload(trigger reloadEvent) {
	if db == nil {
		return
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(metaBucketName)
		if err != nil {
			return err
		}

		if err := bucket.Put(lastReloadTimeKey,
			[]byte(time.Now().Format(time.RFC3339))); err != nil {
			return err
		}

		return bucket.Put(lastReloadCauseKey, []byte(trigger.String()))
	})
	if err != nil {
		log.Printf("%sFailed to record reload in database: %v",
			errorPrefix(), err)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func closeDB() {
	if db == nil {
		return
	}

	writeCountersToDB()

	err := db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(metaBucketName)
		if err != nil {
			return err
		}

		return bucket.Put(shutdownMarkerKey, []byte(time.Now().Format(time.RFC3339)))
	})
	if err != nil {
		log.Printf("%sFailed to set clean shutdown marker: %v",
			errorPrefix(), err)
	}

	if err := db.Close(); err != nil {
		log.Printf("%sFailed to close statistics database: %v",
			errorPrefix(), err)
	} else {
		log.Printf("%sStatistics database closed.",
			dbPrefix())
	}

	db = nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
