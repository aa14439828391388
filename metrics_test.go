///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - metrics_test.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"configTestFailuresTotal":   "floxy_config_test_failures_total",
		"reloadsTotal":              "floxy_reloads_total",
		"lifetimeMirrorErrorsTotal": "floxy_lifetime_mirror_errors_total",
	}

	for in, want := range tests {
		if got := metricName(in); got != want {
			t.Errorf("metricName(%q) = %q, want %q",
				in, got, want)
		}
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func get(t *testing.T, h http.Handler, method, path string) (int, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v",
			err)
	}

	return rec.Code, string(body)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestMetricsRouter(t *testing.T) { //nolint:paralleltest
	defer nginxReady.Store(false)

	r := newMetricsRouter(newMetricsRegistry())

	nginxReady.Store(false)

	if code, _ := get(t, r, http.MethodGet, "/healthz"); code != http.StatusServiceUnavailable {
		t.Errorf("/healthz before ready = %d, want 503",
			code)
	}

	nginxReady.Store(true)

	if code, body := get(t, r, http.MethodGet, "/healthz"); code != http.StatusOK || body != "ok\n" {
		t.Errorf("/healthz when ready = %d %q",
			code, body)
	}

	reloadsTotal.Add(1)

	code, body := get(t, r, http.MethodGet, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("/metrics = %d",
			code)
	}

	for _, want := range []string{
		"floxy_reloads_total ",
		"floxy_lifetime_reloads_total ",
		"floxy_nginx_ready 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics does not contain %q",
				want)
		}
	}

	if code, _ := get(t, r, http.MethodPost, "/metrics"); code != http.StatusMethodNotAllowed {
		t.Errorf("POST /metrics = %d, want 405",
			code)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestMetricsServer(t *testing.T) { //nolint:paralleltest
	m, err := startMetricsServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("startMetricsServer failed: %v",
			err)
	}

	defer m.Close()

	transport := &http.Transport{DisableKeepAlives: true}
	defer transport.CloseIdleConnections()

	client := &http.Client{Transport: transport}

	resp, err := client.Get("http://" + m.ln.Addr().String() + "/metrics") //nolint:noctx
	if err != nil {
		t.Fatalf("GET /metrics failed: %v",
			err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics = %d",
			resp.StatusCode)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
