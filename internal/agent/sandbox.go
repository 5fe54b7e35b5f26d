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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/iddy-ani/codex/pkg/errors"
)

// 沙箱模式
const (
	SandboxAuto  = "auto"
	SandboxBwrap = "bwrap"
	SandboxNone  = "none"
)

// passEnv 受限执行时从宿主继承的环境变量
var passEnv = []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TERM", "TMPDIR"}

var lookPath = exec.LookPath

// Sandbox 一次工具执行的隔离参数
type Sandbox struct {
	Mode          string
	WorkDir       string
	WritableRoots []string
	Timeout       time.Duration
}

// ResolvePath 相对路径按工作目录解析为绝对路径
func ResolvePath(workdir, p string) string {
	if p == "" {
		return filepath.Clean(workdir)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(workdir, p)
	}
	return filepath.Clean(p)
}

// canonical 对路径做符号链接展开；目标不存在时展开最近的已存在父目录
func canonical(p string) string {
	p = filepath.Clean(p)
	if real, err := filepath.EvalSymlinks(p); err == nil {
		return real
	}
	dir, base := filepath.Split(p)
	dir = filepath.Clean(dir)
	if dir == p {
		return p
	}
	return filepath.Join(canonical(dir), base)
}

// CheckWritable 校验 path 位于任一可写根目录之内
func CheckWritable(path string, roots []string) error {
	if len(roots) == 0 {
		return errors.Invalidf("write to %s denied: no writable roots", path)
	}
	target := canonical(path)
	for _, root := range roots {
		r := canonical(root)
		rel, err := filepath.Rel(r, target)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return nil
		}
	}
	return errors.Invalidf("write to %s denied: outside writable roots", path)
}

func (s Sandbox) useBwrap() (bool, error) {
	switch s.Mode {
	case SandboxNone:
		return false, nil
	case SandboxBwrap:
		if _, err := lookPath("bwrap"); err != nil {
			return false, errors.Wrap(err, "sandbox mode bwrap requires bubblewrap")
		}
		return true, nil
	default:
		_, err := lookPath("bwrap")
		return err == nil, nil
	}
}

// Unconfined auto 模式下宿主没有 bwrap 时，shell 仅清洗环境变量，不限制文件系统写入
func Unconfined(mode string) bool {
	if mode != "" && mode != SandboxAuto {
		return false
	}
	wrap, _ := Sandbox{Mode: mode}.useBwrap()
	return !wrap
}

// Command 构造受限命令：清洗环境变量、固定工作目录，可用时包一层 bwrap
func (s Sandbox) Command(ctx context.Context, argv []string) (*exec.Cmd, error) {
	if len(argv) == 0 {
		return nil, errors.Invalidf("command is required")
	}
	wrap, err := s.useBwrap()
	if err != nil {
		return nil, err
	}
	if wrap {
		argv = bwrapArgs(s.WorkDir, s.WritableRoots, argv)
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = s.WorkDir
	cmd.Env = restrictedEnv()
	return cmd, nil
}

// bwrapArgs 只读根文件系统，可写根目录绑定为读写，断开网络
func bwrapArgs(workdir string, roots, argv []string) []string {
	args := []string{
		"bwrap",
		"--unshare-net",
		"--unshare-pid",
		"--die-with-parent",
		"--new-session",
		"--ro-bind", "/", "/",
		"--dev", "/dev",
		"--proc", "/proc",
		"--tmpfs", "/tmp",
	}
	for _, r := range roots {
		args = append(args, "--bind", r, r)
	}
	args = append(args, "--chdir", workdir, "--")
	return append(args, argv...)
}

func restrictedEnv() []string {
	env := make([]string, 0, len(passEnv)+1)
	for _, k := range passEnv {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	return append(env, "CODEX_SANDBOX=1")
}
