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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/iddy-ani/codex/pkg/config"
)

const projectDocSeparator = "\n\n--- project-doc ---\n\n"

// projectDocNames 工作目录下按顺序查找的项目说明文件
var projectDocNames = []string{"AGENTS.md", "codex.md", ".codex.md", "CODEX.md"}

// SessionConfig 单个会话的 Agent 配置
type SessionConfig struct {
	Model        string
	Instructions string
	// ProjectDoc 工作目录中的项目说明，拼接在系统提示之后
	ProjectDoc string
	WorkingDir string

	FullStdout     bool
	MaxOutputBytes int
	ShellTimeout   time.Duration
	// Sandbox auto | bwrap | none
	Sandbox string

	DisableProjectDoc  bool
	ProjectDocMaxBytes int
}

// FromConfig 由进程配置生成会话基础配置
func FromConfig(c config.AgentConfig) SessionConfig {
	shellTimeout, err := time.ParseDuration(c.ShellTimeout)
	if err != nil || shellTimeout <= 0 {
		shellTimeout = 60 * time.Second
	}
	return SessionConfig{
		Model:              c.Model,
		Instructions:       c.Instructions,
		FullStdout:         c.FullStdout,
		MaxOutputBytes:     c.MaxOutputBytes,
		ShellTimeout:       shellTimeout,
		Sandbox:            c.Sandbox,
		DisableProjectDoc:  c.DisableProjectDoc,
		ProjectDocMaxBytes: c.ProjectDocMaxBytes,
	}
}

// SystemPrompt 系统提示：指令 + 项目说明
func (c SessionConfig) SystemPrompt() string {
	if c.ProjectDoc == "" {
		return c.Instructions
	}
	if c.Instructions == "" {
		return c.ProjectDoc
	}
	return c.Instructions + projectDocSeparator + c.ProjectDoc
}

// LoadSessionConfig 以 base 为基础，合并 <workdir>/.codex/config.* 与项目说明文件
func LoadSessionConfig(base SessionConfig, workdir string) (SessionConfig, error) {
	cfg := base
	cfg.WorkingDir = workdir

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(filepath.Join(workdir, ".codex"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, err
		}
	} else {
		if s := v.GetString("model"); s != "" {
			cfg.Model = s
		}
		if s := v.GetString("instructions"); s != "" {
			cfg.Instructions = s
		}
		if v.IsSet("full_stdout") {
			cfg.FullStdout = v.GetBool("full_stdout")
		}
		if d := v.GetDuration("shell_timeout"); d > 0 {
			cfg.ShellTimeout = d
		}
		if v.IsSet("disable_project_doc") {
			cfg.DisableProjectDoc = v.GetBool("disable_project_doc")
		}
	}

	if !cfg.DisableProjectDoc {
		cfg.ProjectDoc = readProjectDoc(workdir, cfg.ProjectDocMaxBytes)
	}
	return cfg, nil
}

func readProjectDoc(workdir string, maxBytes int) string {
	for _, name := range projectDocNames {
		data, err := os.ReadFile(filepath.Join(workdir, name))
		if err != nil {
			continue
		}
		if maxBytes > 0 && len(data) > maxBytes {
			data = data[:maxBytes]
		}
		if doc := strings.TrimSpace(string(data)); doc != "" {
			return doc
		}
	}
	return ""
}
