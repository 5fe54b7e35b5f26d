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

package agent

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iddy-ani/codex/pkg/errors"
)

func toolByName(t *testing.T, cfg SessionConfig, name string) tool.InvokableTool {
	t.Helper()
	for _, tl := range NewTools(cfg) {
		info, err := tl.Info(context.Background())
		require.NoError(t, err)
		if info.Name == name {
			return tl
		}
	}
	t.Fatalf("tool %s not found", name)
	return nil
}

func TestWriteFile_SandboxAllowlist(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	wt := toolByName(t, SessionConfig{WorkingDir: dir}, "write_file")
	opts := withExecOptions(ExecOptions{Sandboxed: true, AllowedWritePaths: []string{dir}})

	out, err := wt.InvokableRun(context.Background(), `{"path":"sub/a.txt","content":"hi"}`, opts)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 2 bytes")
	data, err := os.ReadFile(filepath.Join(dir, "sub", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	_, err = wt.InvokableRun(context.Background(),
		`{"path":"`+filepath.Join(outside, "b.txt")+`","content":"x"}`, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArg))
	_, statErr := os.Stat(filepath.Join(outside, "b.txt"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = wt.InvokableRun(context.Background(), `{"path":"../escape.txt","content":"x"}`, opts)
	require.Error(t, err)
}

func TestReadFileAndListDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.md"), []byte("0123456789"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "pkg"), 0o755))
	cfg := SessionConfig{WorkingDir: dir, MaxOutputBytes: 4}

	out, err := toolByName(t, cfg, "read_file").InvokableRun(context.Background(), `{"path":"note.md"}`)
	require.NoError(t, err)
	assert.Equal(t, "0123"+truncatedMarker, out)

	cfg.FullStdout = true
	out, err = toolByName(t, cfg, "read_file").InvokableRun(context.Background(), `{"path":"note.md"}`)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", out)

	out, err = toolByName(t, cfg, "list_dir").InvokableRun(context.Background(), `{}`)
	require.NoError(t, err)
	assert.Equal(t, "note.md\npkg/", out)

	_, err = toolByName(t, cfg, "read_file").InvokableRun(context.Background(), `not json`)
	assert.True(t, errors.Is(err, errors.ErrInvalidArg))
}

func TestShellTool(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	st := toolByName(t, SessionConfig{WorkingDir: dir, Sandbox: SandboxNone}, "shell")

	out, err := st.InvokableRun(context.Background(), `{"command":["sh","-c","echo hello; exit 3"]}`,
		withExecOptions(ExecOptions{Sandboxed: true, AllowedWritePaths: []string{dir}}))
	require.NoError(t, err)
	var res shellOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "hello", strings.TrimSpace(res.Output))
	assert.Equal(t, 3, res.Metadata.ExitCode)

	_, err = st.InvokableRun(context.Background(), `{"command":[]}`)
	assert.True(t, errors.Is(err, errors.ErrInvalidArg))

	_, err = st.InvokableRun(context.Background(), `{"command":["sh","-c","sleep 2"],"timeout":50}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
