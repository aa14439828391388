//go:build linux

///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - main.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

const envPrefix = "FLOXY_"

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	sharedDir        string
	privateDir       string
	confDirPerm      uint = 0o755
	nginxBinary      string
	nginxConf        string
	nginxErrorLog    string
	nginxPidFile     string
	startTimeout     time.Duration
	pollInterval     time.Duration
	pollTimeout      time.Duration
	unexpectedEvents string
	reloadRetries    int
	reloadRetryWait  time.Duration
	enableMDNS       bool
	showVersion      bool
)

///////////////////////////////////////////////////////////////////////////////////////////////////

type octalPermValue uint

///////////////////////////////////////////////////////////////////////////////////////////////////

func (op *octalPermValue) String() string {
	return fmt.Sprintf("%o", *op)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (op *octalPermValue) Set(s string) error {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid octal permission value: %w", err)
	}
	*op = octalPermValue(v)

	return nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (op *octalPermValue) Type() string {
	return "octal"
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func init() {
	pflag.CommandLine.SortFlags = false

	pflag.StringVarP(&sharedDir,
		"shared-dir", "S", "/tmp/floxy/conf.d",
		"Shared configuration tree written by the generator")

	pflag.StringVarP(&privateDir,
		"private-dir", "D", "/etc/nginx/conf.d/floxy",
		"Private configuration tree read by nginx\n   (removed and recreated at startup)")

	pflag.VarP((*octalPermValue)(&confDirPerm),
		"conf-dir-perm", "m",
		"Permissions (octal) for new configuration directories\n   [e.g., \"755\", \"750\"]")
	pflag.Lookup("conf-dir-perm").DefValue = "\"755\""

	pflag.StringVarP(&nginxBinary,
		"nginx", "n", "nginx",
		"nginx executable")

	pflag.StringVarP(&nginxConf,
		"nginx-conf", "f", "/etc/nginx/nginx.conf",
		"nginx main configuration file")

	pflag.StringVarP(&nginxErrorLog,
		"error-log", "e", "/dev/stderr",
		"nginx error log")

	pflag.StringVarP(&nginxPidFile,
		"pid-file", "p", "/run/nginx.pid",
		"nginx pid file, polled to detect readiness")

	pflag.DurationVarP(&startTimeout,
		"start-timeout", "T", 30*time.Second,
		"Maximum time to wait for nginx to become ready")

	pflag.DurationVarP(&pollInterval,
		"poll-interval", "I", 125*time.Millisecond,
		"Readiness polling interval")

	pflag.DurationVarP(&pollTimeout,
		"poll-timeout", "W", 0,
		"Maximum time to block waiting for events\n   (0 waits indefinitely)")

	pflag.StringVarP(&unexpectedEvents,
		"unexpected-events", "u", "abort",
		"Handling of unexpected inotify events [\"abort\", \"ignore\"]")

	pflag.IntVarP(&reloadRetries,
		"reload-retries", "r", 0,
		"Number of times to retry a failed \"nginx -s reload\"")

	pflag.DurationVarP(&reloadRetryWait,
		"reload-retry-wait", "R", time.Second,
		"Delay between reload retries")

	pflag.StringVarP(&logDir,
		"log-dir", "L", "./log",
		"Base directory for console logs")

	pflag.StringVarP(&consoleLog,
		"console-log", "c", "",
		"Enable console logging [\"quiet\", \"noquiet\"]")

	pflag.StringVarP(&compressAlgo,
		"compress-algo", "C", "gzip",
		"Compression algorithm [\"gzip\", \"lzip\", \"xz\", \"zstd\"]\n  ")

	pflag.StringVarP(&compressLevel,
		"compress-level", "s", "normal",
		"Compression level for gzip and zstd algorithms\n   [\"fast\", \"normal\", \"high\"]\n  ")

	pflag.BoolVarP(&noCompress,
		"no-compress", "x", false,
		"Disable console log compression")

	pflag.VarP((*octalPermValue)(&logPerm),
		"log-perm", "",
		"Permissions (octal) for new log files\n   [ e.g., \"600\", \"644\"]")
	pflag.Lookup("log-perm").DefValue = "\"600\""

	pflag.VarP((*octalPermValue)(&logDirPerm),
		"log-dir-perm", "",
		"Permissions (octal) for new log directories\n   [e.g., \"755\", \"750\"]")
	pflag.Lookup("log-dir-perm").DefValue = "\"750\""

	pflag.StringVarP(&dbPath,
		"db", "B", "",
		"Path to persistent statistics database\n   (disabled if unset)")

	pflag.VarP((*octalPermValue)(&dbPerm),
		"db-perm", "",
		"Permissions (octal) for new database files\n   [e.g., \"600\", \"644\"]")
	pflag.Lookup("db-perm").DefValue = "\"600\""

	pflag.StringVarP(&dbLogLevel,
		"db-loglevel", "", "error",
		"Database log level [\"none\", \"error\", \"warning\", \"info\", \"debug\"]")

	pflag.StringVarP(&metricsAddr,
		"metrics-addr", "M", "",
		"Prometheus metrics and health listener [e.g., \":9113\"]\n   (disabled if unset)")

	pflag.BoolVarP(&enableMDNS,
		"mdns", "", false,
		"Announce the nginx service via mDNS")

	pflag.StringVarP(&mdnsService,
		"mdns-service", "", "_http._tcp",
		"mDNS service type to announce")

	pflag.IntVarP(&mdnsPort,
		"mdns-port", "", 80,
		"Port announced via mDNS")

	pflag.BoolVarP(&enableGops,
		"gops", "g", false,
		"Enable the \"gops\" diagnostic agent")

	pflag.StringVarP(&gopsAddr,
		"gops-addr", "", "",
		"Listen address for the \"gops\" agent\n   (default picks a loopback port)")

	pflag.BoolVarP(&showVersion,
		"version", "v", false,
		"Show version information")
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// envName maps "reload-retry-wait" to "FLOXY_RELOAD_RETRY_WAIT".
func envName(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// applyEnvironment loads FLOXY_* variables into fs before parsing, so that command line
// arguments still take precedence.
func applyEnvironment(fs *pflag.FlagSet) error {
	var firstErr error

	fs.VisitAll(func(f *pflag.Flag) {
		v, ok := os.LookupEnv(envName(f.Name))
		if !ok || firstErr != nil {
			return
		}

		if err := f.Value.Set(v); err != nil {
			firstErr = fmt.Errorf("invalid %s: %w", envName(f.Name), err)
		}
	})

	return firstErr
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func validateFlags() (eventPolicy, error) {
	policy, err := parseEventPolicy(unexpectedEvents)
	if err != nil {
		return policy, err
	}

	if consoleLog != "" {
		cl := strings.ToLower(consoleLog)
		if cl != "quiet" && cl != "noquiet" { //nolint:goconst
			return policy, fmt.Errorf("invalid --console-log value: %s.  "+
				"Must be 'quiet' or 'noquiet'", consoleLog)
		}

		isConsoleLogQuiet = (cl == "quiet")
	}

	if _, ok := compressExtensions[compressAlgo]; !ok {
		return policy, fmt.Errorf("invalid --compress-algo: %s", compressAlgo)
	}

	switch compressLevel {
	case "fast", "normal", "high": //nolint:goconst

	default:
		return policy, fmt.Errorf("invalid --compress-level: %s", compressLevel)
	}

	if reloadRetries < 0 {
		return policy, fmt.Errorf("invalid --reload-retries: %d", reloadRetries)
	}

	if pollInterval <= 0 {
		return policy, fmt.Errorf("invalid --poll-interval: %s", pollInterval)
	}

	if err := SetDbLogLevel(dbLogLevel); err != nil {
		return policy, err
	}

	return policy, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func main() {
	if err := applyEnvironment(pflag.CommandLine); err != nil {
		log.Fatalf("ERROR: %v", err) // LINTED: Fatalf
	}

	pflag.Parse()

	haveUTF8console = haveUTF8support()

	if showVersion {
		fmt.Println(versionString())
		fmt.Println()
		printVersionTable(os.Stdout)
		os.Exit(0)
	}

	log.Println(versionString())

	policy, err := validateFlags()
	if err != nil {
		log.Fatalf("%sERROR: %v", errorPrefix(), err) // LINTED: Fatalf
	}

	if err := setupConsoleLogging(); err != nil {
		log.Fatalf("%sERROR: %v", errorPrefix(), err) // LINTED: Fatalf
	}

	atExit(closeConsoleLogging)

	if enableGops {
		if err := gopsInit(); err != nil {
			log.Printf("%s%v",
				warnPrefix(), err)
		} else {
			atExit(gopsClose)
		}
	}

	debugInit()

	if err := initDB(); err != nil {
		fatalf("%v", err)
	}

	atExit(closeDB)

	gate, err := installSignalGate()
	if err != nil {
		fatalf("%v", err)
	}

	atExit(gate.Close)

	mirror := &configMirror{
		sharedRoot:  sharedDir,
		privateRoot: privateDir,
		dirPerm:     os.FileMode(confDirPerm), //nolint:gosec
	}

	if err := mirror.bootstrap(); err != nil {
		fatalf("%v", err)
	}

	w, err := establishWatches(sharedDir, gate, pollTimeout)
	if err != nil {
		fatalf("%v", err)
	}

	atExit(w.Close)

	if metricsAddr != "" {
		m, err := startMetricsServer(metricsAddr)
		if err != nil {
			fatalf("%v", err)
		}

		atExit(m.Close)
	}

	checkCapability()

	proxy := &nginxCommand{
		binary:       nginxBinary,
		configPath:   nginxConf,
		errorLog:     nginxErrorLog,
		readyMarker:  nginxPidFile,
		pollInterval: pollInterval,
		startTimeout: startTimeout,
		retries:      reloadRetries,
		retryWait:    reloadRetryWait,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
	}

	child, err := proxy.startAndAwaitReady()
	if errors.Is(err, errStartAbort) {
		log.Printf("%s%v",
			bellPrefix(), err)
		runCleanups()
		log.Printf("%sGoodbye",
			byePrefix())

		return
	}

	if err != nil {
		fatalf("%v", err)
	}

	// Runs first on a fatal exit; a no-op once the child has been reaped.
	atExit(func() {
		nginxReady.Store(false)
		child.terminate(syscall.SIGTERM)
		child.awaitExit()
	})

	nginxReady.Store(true)

	if enableMDNS {
		a := announceMDNS(mdnsService, mdnsPort, nginxConf)
		atExit(a.Close)
	}

	log.Printf("%sSupervising nginx [PID %d] - watching %q",
		greenDotPrefix(), child.pid(), sharedDir)

	sup := &supervisor{
		source:     w,
		table:      w.table,
		mirror:     mirror,
		proxy:      proxy,
		unexpected: policy,
	}

	sig, err := sup.run()
	if err != nil {
		fatalf("%v", err)
	}

	log.Printf("%sShutting down nginx with signal %d (%s)",
		bellPrefix(), int(sig), sig)

	nginxReady.Store(false)
	child.terminate(sig)
	child.awaitExit()

	log.Printf("nginx exited: %s",
		child.cmd.ProcessState)

	runCleanups()

	log.Printf("%sGoodbye",
		byePrefix())
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
