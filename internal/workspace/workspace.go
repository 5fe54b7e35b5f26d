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

// Package workspace 工作目录校验与浏览
package workspace

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/iddy-ani/codex/pkg/errors"
)

// Validation 目录校验结果
type Validation struct {
	Status      string `json:"status"` // valid | invalid
	Message     string `json:"message"`
	Path        string `json:"path"`
	Exists      bool   `json:"exists"`
	IsDirectory bool   `json:"is_directory"`
	Readable    bool   `json:"readable"`
	Writable    bool   `json:"writable"`
}

// Validate 解析为绝对路径并检查存在、是目录、可读、可写
func Validate(path string) Validation {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	v := Validation{Path: abs}
	info, err := os.Stat(abs)
	if err == nil {
		v.Exists = true
		v.IsDirectory = info.IsDir()
		v.Readable = readable(abs, info.IsDir())
		v.Writable = writable(abs)
	}
	switch {
	case v.Exists && v.IsDirectory && v.Readable:
		v.Status, v.Message = "valid", "Directory is valid and accessible"
	case !v.Exists:
		v.Status, v.Message = "invalid", "Directory does not exist"
	case !v.IsDirectory:
		v.Status, v.Message = "invalid", "Path is not a directory"
	default:
		v.Status, v.Message = "invalid", "Directory is not readable"
	}
	return v
}

func readable(path string, dir bool) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	if dir {
		_, err = f.Readdirnames(1)
		return err == nil || err == io.EOF
	}
	return true
}

// ResolveWorkingDir 会话工作目录：为空取进程当前目录；否则要求存在、是目录且可读
func ResolveWorkingDir(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return os.Getwd()
	}
	v := Validate(path)
	switch {
	case !v.Exists:
		return "", &PathError{Reason: "Directory does not exist", Path: path}
	case !v.IsDirectory:
		return "", &PathError{Reason: "Path is not a directory", Path: path}
	case !v.Readable:
		return "", &PathError{Reason: "Directory is not readable", Path: path}
	}
	return v.Path, nil
}

// Entry 目录列表项
type Entry struct {
	Name        string     `json:"name"`
	Path        string     `json:"path"`
	IsDirectory bool       `json:"is_directory"`
	IsParent    bool       `json:"is_parent"`
	Size        *int64     `json:"size"`
	Modified    *time.Time `json:"modified,omitempty"`
}

// Listing 目录浏览结果
type Listing struct {
	CurrentPath string  `json:"current_path"`
	Parent      *string `json:"parent"`
	Items       []Entry `json:"items"`
	CanSelect   bool    `json:"can_select"`
}

// ReasonPermission 浏览时目录无权限读取
const ReasonPermission = "Permission denied accessing"

// PathError 目录校验失败，Error() 可直接返回给客户端
type PathError struct {
	Reason string
	Path   string
}

func (e *PathError) Error() string { return e.Reason + ": " + e.Path }

// Is 使 errors.Is(err, errors.ErrInvalidArg) 成立
func (e *PathError) Is(target error) bool { return target == errors.ErrInvalidArg }

// Browse 列出目录；路径无效时回退到父目录或当前目录，隐藏项不列出
func Browse(path string) (*Listing, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	dir := cwd
	if p := strings.TrimSpace(path); p != "" {
		if abs, err := filepath.Abs(p); err == nil {
			dir = abs
		}
	}
	if info, err := os.Stat(dir); err != nil {
		dir = cwd
	} else if !info.IsDir() {
		dir = filepath.Dir(dir)
		if _, err := os.Stat(dir); err != nil {
			dir = cwd
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			return nil, &PathError{Reason: ReasonPermission, Path: dir}
		}
		return nil, err
	}

	l := &Listing{CurrentPath: dir, Items: []Entry{}, CanSelect: true}
	if parent := filepath.Dir(dir); parent != dir {
		l.Parent = &parent
		l.Items = append(l.Items, Entry{Name: "..", Path: parent, IsDirectory: true, IsParent: true})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		full := filepath.Join(dir, e.Name())
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		mod := info.ModTime()
		item := Entry{Name: e.Name(), Path: full, IsDirectory: info.IsDir(), Modified: &mod}
		if info.Mode().IsRegular() {
			size := info.Size()
			item.Size = &size
		}
		l.Items = append(l.Items, item)
	}
	return l, nil
}
