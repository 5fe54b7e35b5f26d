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

package http

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"github.com/iddy-ani/codex/internal/api/http/middleware"
	"github.com/iddy-ani/codex/internal/instructions"
	"github.com/iddy-ani/codex/internal/runtime/session"
)

func buildRouterForTest(t *testing.T, withJWT bool) *Router {
	t.Helper()
	store, err := instructions.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	r := NewRouter(NewHandler(session.NewManager(nil), store, nil), middleware.NewMiddleware(nil, nil))
	if withJWT {
		mw, err := middleware.NewJWTAuth([]byte("k"), time.Hour, time.Hour, "access")
		if err != nil {
			t.Fatalf("NewJWTAuth: %v", err)
		}
		r.SetJWT(mw)
	}
	r.SetRealtime("/ws", func(ctx context.Context, c *app.RequestContext) { c.String(200, "realtime") })
	return r
}

func TestRouter_AuthDisabledByDefault(t *testing.T) {
	s := buildRouterForTest(t, false).Build(":0")

	w := ut.PerformRequest(s.Engine, "GET", "/api/codex/health", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("GET /api/codex/health status = %d, want 200", got)
	}
	w = ut.PerformRequest(s.Engine, "POST", "/api/auth/login", nil)
	if got := w.Result().StatusCode(); got != 404 {
		t.Fatalf("POST /api/auth/login status = %d, want 404 without jwt", got)
	}
	w = ut.PerformRequest(s.Engine, "GET", "/ws", nil)
	if got := string(w.Result().Body()); got != "realtime" {
		t.Fatalf("GET /ws body = %q", got)
	}
}

func TestRouter_AuthEnabled(t *testing.T) {
	s := buildRouterForTest(t, true).Build(":0")

	w := ut.PerformRequest(s.Engine, "GET", "/api/codex/health", nil)
	if got := w.Result().StatusCode(); got != 401 {
		t.Fatalf("GET /api/codex/health status = %d, want 401", got)
	}
	w = ut.PerformRequest(s.Engine, "GET", "/ws", nil)
	if got := w.Result().StatusCode(); got != 401 {
		t.Fatalf("GET /ws status = %d, want 401", got)
	}
	// metrics 不需要认证
	w = ut.PerformRequest(s.Engine, "GET", "/metrics", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("GET /metrics status = %d, want 200", got)
	}
	body := []byte(`{"access_key":"access"}`)
	w = ut.PerformRequest(s.Engine, "POST", "/api/auth/login", &ut.Body{Body: bytes.NewReader(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("POST /api/auth/login status = %d, want 200", got)
	}
}

func TestRouter_NoRoute(t *testing.T) {
	s := buildRouterForTest(t, false).Build(":0")
	w := ut.PerformRequest(s.Engine, "GET", "/nope", nil)
	if got := w.Result().StatusCode(); got != 404 {
		t.Fatalf("status = %d, want 404", got)
	}
	if !bytes.Contains(w.Result().Body(), []byte(`"status":"error"`)) {
		t.Fatalf("body = %s", w.Result().Body())
	}
}
