///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - metrics.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
//
//nolint:godoclint,nolintlint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	metricsAddr string
	nginxReady  atomic.Bool
	camelRe     = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

///////////////////////////////////////////////////////////////////////////////////////////////////

type metricsServer struct {
	srv *http.Server
	ln  net.Listener
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// metricName turns "configTestFailuresTotal" into "floxy_config_test_failures_total".
func metricName(name string) string {
	return "floxy_" + strings.ToLower(camelRe.ReplaceAllString(name, "${1}_${2}"))
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	for _, c := range counters {
		reg.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: metricName(c.name),
				Help: c.help,
			},
			func() float64 { return float64(c.current.Load()) },
		))

		reg.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: metricName("lifetime" + strings.ToUpper(c.name[:1]) + c.name[1:]),
				Help: c.help + ", including previous runs",
			},
			func() float64 { return float64(c.total()) },
		))
	}

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "floxy_nginx_ready",
			Help: "Whether the supervised nginx is up (1) or not (0)",
		},
		func() float64 {
			if nginxReady.Load() {
				return 1
			}

			return 0
		},
	))

	return reg
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func newMetricsRouter(reg *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).
		Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !nginxReady.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("nginx not ready\n"))

			return
		}

		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	return r
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func startMetricsServer(addr string) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("LISTEN %s: %w", addr, err)
	}

	m := &metricsServer{
		srv: &http.Server{
			Handler:           newMetricsRouter(newMetricsRegistry()),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln: ln,
	}

	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("%sMetrics server: %v",
				warnPrefix(), err)
		}
	}()

	log.Printf("Metrics listener on %s",
		ln.Addr())

	return m, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (m *metricsServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)

	defer cancel()

	if err := m.srv.Shutdown(ctx); err != nil {
		log.Printf("%sError shutting down metrics server: %v",
			warnPrefix(), err)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
