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

// Package instructions 指令文件存储：<base>/instructions/<id>.md 与持久化的选中项
package instructions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/iddy-ani/codex/pkg/errors"
	"github.com/iddy-ani/codex/pkg/log"
)

const (
	// DefaultName 内置且不可删除的指令
	DefaultName = "default"
	// UntitledName 名称净化后为空时使用
	UntitledName = "untitled"

	dirName    = "instructions"
	configName = "instructions_config.json"
	ext        = ".md"
)

// Instruction 指令文件元数据
type Instruction struct {
	Filename string    `json:"filename"`
	Title    string    `json:"title"`
	Path     string    `json:"path"`
	Size     int       `json:"size"`
	Modified time.Time `json:"modified"`
}

type selection struct {
	SelectedInstruction string `json:"selected_instruction"`
}

// Store 文件型指令存储；文件本身不加锁，后写覆盖先写
type Store struct {
	base       string
	dir        string
	configFile string
	logger     *log.Logger

	// mu 串行化选中项的读写
	mu sync.Mutex
}

// DefaultBaseDir ~/.dataagent
func DefaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".dataagent")
}

// Open 打开（必要时创建）存储目录；目录中没有任何 .md 时写入 default
func Open(baseDir string, logger *log.Logger) (*Store, error) {
	if baseDir == "" {
		baseDir = DefaultBaseDir()
	}
	if logger == nil {
		logger = log.Nop()
	}
	s := &Store{
		base:       baseDir,
		dir:        filepath.Join(baseDir, dirName),
		configFile: filepath.Join(baseDir, configName),
		logger:     logger,
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create instructions dir")
	}
	if err := s.ensureDefault(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir 指令目录
func (s *Store) Dir() string { return s.dir }

func (s *Store) ensureDefault() error {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+ext))
	if err != nil {
		return err
	}
	if len(matches) > 0 {
		return nil
	}
	_, err = s.Save(DefaultName, defaultContent)
	return err
}

// Sanitize 只保留字母、数字、空格、- 与 _，去掉首尾空格；结果为空时返回 untitled
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return UntitledName
	}
	return out
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+ext)
}

// List 列出全部指令，按文件名排序；单个文件读取失败时跳过
func (s *Store) List() ([]Instruction, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+ext))
	if err != nil {
		return nil, err
	}
	out := make([]Instruction, 0, len(matches))
	for _, p := range matches {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			s.logger.Warn("read instruction file failed", "path", p, "error", err)
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(p), ext)
		out = append(out, Instruction{
			Filename: stem,
			Title:    titleOf(string(data), stem),
			Path:     p,
			Size:     len(data),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// titleOf 首行以 "# " 开头时取其后内容，否则为文件名
func titleOf(content, fallback string) string {
	first, _, _ := strings.Cut(content, "\n")
	first = strings.TrimSuffix(first, "\r")
	if strings.HasPrefix(first, "# ") {
		return strings.TrimSpace(strings.TrimPrefix(first, "# "))
	}
	return fallback
}

// Exists 指令是否存在
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.path(Sanitize(name)))
	return err == nil && !info.IsDir()
}

// Get 读取指令内容；不存在时返回 ErrNotFound
func (s *Store) Get(name string) (string, error) {
	id := Sanitize(name)
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrapf(errors.ErrNotFound, "instruction %q", id)
		}
		return "", errors.Wrapf(err, "read instruction %q", id)
	}
	return string(data), nil
}

// Save 净化名称后覆盖写入，返回实际使用的 id
func (s *Store) Save(name, content string) (string, error) {
	id := Sanitize(name)
	if err := os.WriteFile(s.path(id), []byte(content), 0o644); err != nil {
		s.logger.Error("save instruction failed", "filename", id, "error", err)
		return "", errors.Wrapf(err, "save instruction %q", id)
	}
	return id, nil
}

// Delete 删除指令；default 返回 ErrProtected，不存在返回 ErrNotFound
func (s *Store) Delete(name string) error {
	id := Sanitize(name)
	if id == DefaultName {
		return errors.Wrapf(errors.ErrProtected, "instruction %q", id)
	}
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(errors.ErrNotFound, "instruction %q", id)
		}
		s.logger.Error("delete instruction failed", "filename", id, "error", err)
		return errors.Wrapf(err, "delete instruction %q", id)
	}
	return nil
}

// Selected 当前选中的指令；记录缺失或损坏时为 default
func (s *Store) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.configFile)
	if err != nil {
		return DefaultName
	}
	var sel selection
	if err := json.Unmarshal(data, &sel); err != nil || sel.SelectedInstruction == "" {
		return DefaultName
	}
	return sel.SelectedInstruction
}

// Select 持久化选中项；指令必须存在
func (s *Store) Select(name string) error {
	id := Sanitize(name)
	if !s.Exists(id) {
		return errors.Wrapf(errors.ErrNotFound, "instruction %q", id)
	}
	data, err := json.MarshalIndent(selection{SelectedInstruction: id}, "", "  ")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.configFile, data, 0o644); err != nil {
		s.logger.Error("persist selected instruction failed", "filename", id, "error", err)
		return errors.Wrap(err, "persist selected instruction")
	}
	return nil
}

// Current 选中指令的内容，回退到 default，再回退为空
func (s *Store) Current() string {
	if content, err := s.Get(s.Selected()); err == nil && content != "" {
		return content
	}
	if content, err := s.Get(DefaultName); err == nil {
		return content
	}
	return ""
}

const defaultContent = `# Default Codex Instructions

You are Codex, an AI coding assistant integrated into the Data Agent platform.

## Your Capabilities
- Writing and debugging code in multiple languages
- Analyzing data files and creating visualizations
- Creating scripts and automation tools
- Explaining technical concepts clearly
- File manipulation and organization
- Command-line operations and system administration

## Guidelines
- Always ask for permission before making significant changes to files
- Provide clear explanations of what your tools do and what the results mean
- When analyzing data, always follow up with insights and recommendations
- Be helpful, accurate, and prioritize safety in all suggestions
- Focus on practical, working solutions

## Tool Usage
After executing any tool, always provide:
1. What the tool accomplished
2. Interpretation of the results
3. Any insights or patterns discovered
4. Recommended next steps

Remember: You're here to help users be more productive with their coding and data analysis tasks!
`
