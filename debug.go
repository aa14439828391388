//go:build debug

///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - debug.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	_ "expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/arl/statsviz"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

const debugPort = 6060

///////////////////////////////////////////////////////////////////////////////////////////////////

func debugInit() {
	mux := http.NewServeMux()

	if err := statsviz.Register(mux); err != nil {
		log.Printf("%sCould not register statsviz: %v",
			warnPrefix(), err)
	}

	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	mux.Handle("/debug/vars", http.DefaultServeMux)

	mux.Handle("/debug/counters", promhttp.HandlerFor(newMetricsRegistry(), promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `
        <html>
        <head><title>Floxy Entrypoint Debugging Dashboard</title></head>
        <body>
            <h1>Debug Dashboard</h1>
            <ul>
                <li><a href="/debug/vars">expvar</a></li>
                <li><a href="/debug/pprof/">pprof</a></li>
                <li><a href="/debug/statsviz/">statsviz</a></li>
                <li><a href="/debug/counters">counters</a></li>
            </ul>
        </body>
        </html>
    `)
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		log.Printf("%sStarted debug HTTP server [:%d]",
			bugPrefix(), debugPort)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", debugPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		log.Print(srv.ListenAndServe())
	}()
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
