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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/iddy-ani/codex/pkg/errors"
)

const truncatedMarker = "\n[... output truncated ...]"

// execContext 通过 eino 的实现私有 Option 传入工具
type execContext struct {
	ExecOptions
}

func withExecOptions(opts ExecOptions) tool.Option {
	return tool.WrapImplSpecificOptFn(func(ec *execContext) {
		ec.ExecOptions = opts
	})
}

func execOptionsFrom(opts []tool.Option) ExecOptions {
	return tool.GetImplSpecificOptions(&execContext{}, opts...).ExecOptions
}

// toolEnv 工具共享的会话级参数
type toolEnv struct {
	workdir    string
	fullStdout bool
	maxOutput  int
	timeout    time.Duration
	sandbox    string
}

func (e *toolEnv) truncate(s string) string {
	if e.fullStdout || e.maxOutput <= 0 || len(s) <= e.maxOutput {
		return s
	}
	return s[:e.maxOutput] + truncatedMarker
}

// NewTools 创建会话可用的工具集
func NewTools(cfg SessionConfig) []tool.InvokableTool {
	env := &toolEnv{
		workdir:    cfg.WorkingDir,
		fullStdout: cfg.FullStdout,
		maxOutput:  cfg.MaxOutputBytes,
		timeout:    cfg.ShellTimeout,
		sandbox:    cfg.Sandbox,
	}
	return []tool.InvokableTool{
		&shellTool{env: env},
		&readFileTool{env: env},
		&writeFileTool{env: env},
		&listDirTool{env: env},
	}
}

func decodeArgs(name, argumentsInJSON string, v any) error {
	if strings.TrimSpace(argumentsInJSON) == "" {
		argumentsInJSON = "{}"
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), v); err != nil {
		return errors.Invalidf("%s: malformed arguments: %v", name, err)
	}
	return nil
}

// shellTool 在工作目录执行命令
type shellTool struct{ env *toolEnv }

type shellArgs struct {
	Command []string `json:"command"`
	Workdir string   `json:"workdir"`
	Timeout int      `json:"timeout"` // 毫秒
}

type shellOutput struct {
	Output   string        `json:"output"`
	Metadata shellMetadata `json:"metadata"`
}

type shellMetadata struct {
	ExitCode        int     `json:"exit_code"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (t *shellTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "shell",
		Desc: "Runs a shell command in the session working directory and returns its output.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"command": {
				Type:     schema.Array,
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
				Desc:     "argv of the command, e.g. [\"bash\", \"-lc\", \"ls\"]",
				Required: true,
			},
			"workdir": {Type: schema.String, Desc: "working directory, defaults to the session directory"},
			"timeout": {Type: schema.Integer, Desc: "timeout in milliseconds"},
		}),
	}, nil
}

func (t *shellTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var args shellArgs
	if err := decodeArgs("shell", argumentsInJSON, &args); err != nil {
		return "", err
	}
	if len(args.Command) == 0 {
		return "", errors.Invalidf("shell: command is required")
	}
	eo := execOptionsFrom(opts)
	workdir := ResolvePath(t.env.workdir, args.Workdir)

	timeout := t.env.timeout
	if args.Timeout > 0 {
		timeout = time.Duration(args.Timeout) * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if eo.Sandboxed {
		sb := Sandbox{Mode: t.env.sandbox, WorkDir: workdir, WritableRoots: eo.AllowedWritePaths, Timeout: timeout}
		c, err := sb.Command(runCtx, args.Command)
		if err != nil {
			return "", err
		}
		cmd = c
	} else {
		cmd = exec.CommandContext(runCtx, args.Command[0], args.Command[1:]...)
		cmd.Dir = workdir
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	start := time.Now()
	runErr := cmd.Run()
	out := shellOutput{
		Output:   t.env.truncate(buf.String()),
		Metadata: shellMetadata{DurationSeconds: time.Since(start).Round(time.Millisecond).Seconds()},
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case runCtx.Err() == context.DeadlineExceeded:
			return "", fmt.Errorf("shell: command timed out after %v", timeout)
		case errors.As(runErr, &exitErr):
			out.Metadata.ExitCode = exitErr.ExitCode()
		default:
			return "", errors.Wrap(runErr, "shell")
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// readFileTool 读取文件内容
type readFileTool struct{ env *toolEnv }

type pathArgs struct {
	Path string `json:"path"`
}

func (t *readFileTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "read_file",
		Desc: "Reads a text file relative to the session working directory.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"path": {Type: schema.String, Desc: "file path", Required: true},
		}),
	}, nil
}

func (t *readFileTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var args pathArgs
	if err := decodeArgs("read_file", argumentsInJSON, &args); err != nil {
		return "", err
	}
	if args.Path == "" {
		return "", errors.Invalidf("read_file: path is required")
	}
	data, err := os.ReadFile(ResolvePath(t.env.workdir, args.Path))
	if err != nil {
		return "", err
	}
	return t.env.truncate(string(data)), nil
}

// writeFileTool 写入文件；受限执行时只允许可写根目录
type writeFileTool struct{ env *toolEnv }

type writeArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *writeFileTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "write_file",
		Desc: "Creates or overwrites a file relative to the session working directory.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"path":    {Type: schema.String, Desc: "file path", Required: true},
			"content": {Type: schema.String, Desc: "full file content", Required: true},
		}),
	}, nil
}

func (t *writeFileTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var args writeArgs
	if err := decodeArgs("write_file", argumentsInJSON, &args); err != nil {
		return "", err
	}
	if args.Path == "" {
		return "", errors.Invalidf("write_file: path is required")
	}
	target := ResolvePath(t.env.workdir, args.Path)
	if eo := execOptionsFrom(opts); eo.Sandboxed {
		if err := CheckWritable(target, eo.AllowedWritePaths); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, []byte(args.Content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(args.Content), target), nil
}

// listDirTool 列出目录内容，目录以 / 结尾
type listDirTool struct{ env *toolEnv }

func (t *listDirTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "list_dir",
		Desc: "Lists entries of a directory relative to the session working directory.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"path": {Type: schema.String, Desc: "directory path, defaults to the working directory"},
		}),
	}, nil
}

func (t *listDirTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var args pathArgs
	if err := decodeArgs("list_dir", argumentsInJSON, &args); err != nil {
		return "", err
	}
	entries, err := os.ReadDir(ResolvePath(t.env.workdir, args.Path))
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return t.env.truncate(strings.Join(names, "\n")), nil
}
