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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iddy-ani/codex/internal/api/http/middleware"
	"github.com/iddy-ani/codex/internal/instructions"
	"github.com/iddy-ani/codex/internal/runtime/session"
	"github.com/iddy-ani/codex/pkg/config"
)

type testEnv struct {
	s       *server.Hertz
	h       *Handler
	store   *instructions.Store
	changed []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := instructions.Open(t.TempDir(), nil)
	require.NoError(t, err)
	env := &testEnv{store: store}
	env.h = NewHandler(session.NewManager(nil), store, nil)
	env.h.SetAgentConfig(config.AgentConfig{Model: "gpt-4o", MaxTokens: 2048})
	env.h.OnInstructionsChanged(func(name string) { env.changed = append(env.changed, name) })
	env.s = NewRouter(env.h, middleware.NewMiddleware(nil, nil)).Build(":0")
	return env
}

func (e *testEnv) do(method, url string, body any) (int, map[string]any) {
	var b *ut.Body
	if body != nil {
		raw, _ := json.Marshal(body)
		b = &ut.Body{Body: bytes.NewReader(raw), Len: len(raw)}
	}
	w := ut.PerformRequest(e.s.Engine, method, url, b, ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()
	out := map[string]any{}
	_ = json.Unmarshal(resp.Body(), &out)
	return resp.StatusCode(), out
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do("GET", "/api/codex/health", nil)
	assert.Equal(t, 200, code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Codex functionality available", body["message"])
	assert.Equal(t, float64(0), body["active_sessions"])
}

func TestGetConfig(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do("GET", "/api/codex/config", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, "gpt-4o", body["default_model"])
	assert.Equal(t, float64(2048), body["max_tokens"])
	assert.Equal(t, "default", body["current_instruction"])
	assert.Equal(t, true, body["instructions_available"])
	assert.Equal(t, env.store.Dir(), body["instructions_folder"])
	assert.NotEmpty(t, body["models"])
	assert.NotEmpty(t, body["model_descriptions"])
}

func TestGetCurrentDirectory(t *testing.T) {
	env := newTestEnv(t)
	cwd, _ := os.Getwd()
	code, body := env.do("GET", "/api/codex/get-current-directory", nil)
	assert.Equal(t, 200, code)
	assert.Equal(t, cwd, body["current_directory"])
}

func TestValidateDirectory(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()

	code, body := env.do("POST", "/api/codex/validate-directory", map[string]string{"path": dir})
	assert.Equal(t, 200, code)
	assert.Equal(t, "valid", body["status"])
	assert.Equal(t, true, body["writable"])

	code, body = env.do("POST", "/api/codex/validate-directory", map[string]string{"path": filepath.Join(dir, "nope")})
	assert.Equal(t, 200, code)
	assert.Equal(t, "invalid", body["status"])
	assert.Equal(t, false, body["exists"])

	code, body = env.do("POST", "/api/codex/validate-directory", map[string]string{})
	assert.Equal(t, 400, code)
	assert.Equal(t, "No path provided", body["message"])
}

func TestBrowseDirectory(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".secret"), nil, 0o644))

	code, body := env.do("POST", "/api/codex/browse-directory", map[string]string{"current_path": dir})
	require.Equal(t, 200, code)
	assert.Equal(t, dir, body["current_path"])
	assert.Equal(t, true, body["can_select"])
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "..", items[0].(map[string]any)["name"])
	assert.Equal(t, "a", items[1].(map[string]any)["name"])
}

func TestInstructionsCRUD(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do("POST", "/api/codex/instructions", map[string]string{"filename": "My Notes!", "content": "# Notes\nbody"})
	require.Equal(t, 200, code)
	assert.Equal(t, "My Notes", body["filename"])
	assert.Equal(t, []string{"My Notes"}, env.changed)

	code, _ = env.do("POST", "/api/codex/instructions", map[string]string{"filename": "  "})
	assert.Equal(t, 400, code)

	code, body = env.do("GET", "/api/codex/instructions", nil)
	require.Equal(t, 200, code)
	assert.Len(t, body["instructions"], 2)
	assert.Equal(t, "default", body["selected"])

	code, body = env.do("GET", "/api/codex/instructions/My%20Notes", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, "# Notes\nbody", body["content"])

	code, _ = env.do("GET", "/api/codex/instructions/missing", nil)
	assert.Equal(t, 404, code)

	code, _ = env.do("POST", "/api/codex/instructions/select", map[string]string{"filename": "missing"})
	assert.Equal(t, 404, code)
	code, _ = env.do("POST", "/api/codex/instructions/select", map[string]string{})
	assert.Equal(t, 400, code)
	code, _ = env.do("POST", "/api/codex/instructions/select", map[string]string{"filename": "My Notes"})
	assert.Equal(t, 200, code)

	code, body = env.do("GET", "/api/codex/instructions/current", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, "My Notes", body["selected"])
	assert.Equal(t, "# Notes\nbody", body["content"])

	code, body = env.do("DELETE", "/api/codex/instructions/default", nil)
	assert.Equal(t, 400, code)
	assert.Equal(t, "Cannot delete default instructions", body["message"])

	code, _ = env.do("DELETE", "/api/codex/instructions/My%20Notes", nil)
	assert.Equal(t, 200, code)
	code, _ = env.do("DELETE", "/api/codex/instructions/My%20Notes", nil)
	assert.Equal(t, 404, code)

	// 选中项被删除后 current 回退到 default
	code, body = env.do("GET", "/api/codex/instructions/current", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, "default", body["selected"])
	assert.NotEmpty(t, body["content"])
}

func TestOpenInstructionsFolder(t *testing.T) {
	env := newTestEnv(t)
	env.h.goos = "linux"
	code, body := env.do("POST", "/api/codex/instructions/open-folder", nil)
	assert.Equal(t, 400, code)
	assert.Equal(t, "This feature is only available on Windows", body["message"])

	var opened string
	env.h.goos = "windows"
	env.h.openFolder = func(p string) error { opened = p; return nil }
	code, _ = env.do("POST", "/api/codex/instructions/open-folder", nil)
	assert.Equal(t, 200, code)
	assert.Equal(t, env.store.Dir(), opened)
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do("GET", "/api/codex/sessions", nil)
	assert.Equal(t, 200, code)
	assert.Empty(t, body["sessions"])
}
