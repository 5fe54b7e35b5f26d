// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type recorded struct {
	method string
	path   string
	body   map[string]string
}

func newTestServer(t *testing.T) (*httptest.Server, func() []recorded) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &rec.body)
		}
		mu.Lock()
		calls = append(calls, rec)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/codex/health":
			_, _ = w.Write([]byte(`{"status":"success","active_sessions":0}`))
		case r.URL.Path == "/api/codex/instructions/ghost":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":"error","message":"Instruction not found"}`))
		default:
			_, _ = w.Write([]byte(`{"status":"success"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), calls...)
	}
}

func TestRun_Health(t *testing.T) {
	srv, calls := newTestServer(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"health"}, newClient(srv.URL), nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"active_sessions": 0`) {
		t.Fatalf("unexpected output: %s", stdout.String())
	}
	if got := calls(); len(got) != 1 || got[0].method != http.MethodGet {
		t.Fatalf("unexpected calls: %+v", got)
	}
}

func TestRun_InstructionsError(t *testing.T) {
	srv, _ := newTestServer(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"instructions", "get", "ghost"}, newClient(srv.URL), nil, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Instruction not found") {
		t.Fatalf("expected server message in stderr, got: %s", stderr.String())
	}
}

func TestRun_InstructionsSave(t *testing.T) {
	srv, calls := newTestServer(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"instructions", "save", "notes"}, newClient(srv.URL), strings.NewReader("from stdin"), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("save from stdin: code=%d stderr=%s", code, stderr.String())
	}

	file := filepath.Join(t.TempDir(), "notes.md")
	if err := os.WriteFile(file, []byte("from file"), 0o644); err != nil {
		t.Fatal(err)
	}
	code = run([]string{"instructions", "save", "notes", file}, newClient(srv.URL), nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("save from file: code=%d stderr=%s", code, stderr.String())
	}

	got := calls()
	if len(got) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(got))
	}
	if c := got[0].body["content"]; c != "from stdin" {
		t.Errorf("content = %q", c)
	}
	if c := got[1].body["content"]; c != "from file" {
		t.Errorf("content = %q", c)
	}
	if got[1].path != "/api/codex/instructions" || got[1].method != http.MethodPost {
		t.Errorf("unexpected request: %+v", got[1])
	}
}

func TestRun_Routes(t *testing.T) {
	cases := []struct {
		args   []string
		method string
		path   string
	}{
		{[]string{"config"}, http.MethodGet, "/api/codex/config"},
		{[]string{"sessions"}, http.MethodGet, "/api/codex/sessions"},
		{[]string{"ls", "/tmp"}, http.MethodPost, "/api/codex/browse-directory"},
		{[]string{"validate", "/tmp"}, http.MethodPost, "/api/codex/validate-directory"},
		{[]string{"instructions"}, http.MethodGet, "/api/codex/instructions"},
		{[]string{"instructions", "current"}, http.MethodGet, "/api/codex/instructions/current"},
		{[]string{"instructions", "select", "foo"}, http.MethodPost, "/api/codex/instructions/select"},
		{[]string{"instructions", "delete", "foo"}, http.MethodDelete, "/api/codex/instructions/foo"},
	}
	for _, tc := range cases {
		t.Run(strings.Join(tc.args, "_"), func(t *testing.T) {
			srv, calls := newTestServer(t)
			var stdout, stderr bytes.Buffer
			if code := run(tc.args, newClient(srv.URL), nil, &stdout, &stderr); code != 0 {
				t.Fatalf("code=%d stderr=%s", code, stderr.String())
			}
			all := calls()
			if len(all) != 1 {
				t.Fatalf("expected 1 call, got %d", len(all))
			}
			got := all[0]
			if got.method != tc.method || got.path != tc.path {
				t.Errorf("got %s %s, want %s %s", got.method, got.path, tc.method, tc.path)
			}
		})
	}
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, newClient("http://127.0.0.1:1"), nil, &stdout, &stderr); code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "Usage:") {
		t.Fatalf("missing usage: %s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "instructions") {
		t.Fatalf("missing subcommand list: %s", stdout.String())
	}
	if code := run([]string{"bogus"}, newClient("http://127.0.0.1:1"), nil, &stdout, &stderr); code != 1 {
		t.Fatalf("expected 1, got %d", code)
	}
	if code := run([]string{"validate"}, newClient("http://127.0.0.1:1"), nil, &stdout, &stderr); code != 1 {
		t.Fatalf("expected 1, got %d", code)
	}
	stdout.Reset()
	if code := run([]string{"version"}, newClient("http://127.0.0.1:1"), nil, &stdout, &stderr); code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
	if strings.TrimSpace(stdout.String()) != version {
		t.Errorf("version = %q", stdout.String())
	}
}

func TestAPIBaseURL(t *testing.T) {
	t.Setenv("CODEX_API_URL", "")
	if got := apiBaseURL(); got != "http://localhost:5000" {
		t.Errorf("default = %s", got)
	}
	t.Setenv("CODEX_API_URL", "http://bridge:9000")
	if got := apiBaseURL(); got != "http://bridge:9000" {
		t.Errorf("override = %s", got)
	}
}
