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

package secrets

import (
	"context"
	"os"
	"strings"

	"github.com/iddy-ani/codex/pkg/errors"
)

// Env 从环境变量读取；key 先按原样查找，再转换为大写并把 - . / 换成 _
// 例如 secret://azure-openai.key 读取 AZURE_OPENAI_KEY
type Env struct {
	// Prefix 拼在转换后的变量名之前，如 CODEX_
	Prefix string
}

var envReplacer = strings.NewReplacer("-", "_", ".", "_", "/", "_")

// EnvName key 对应的环境变量名
func (e Env) EnvName(key string) string {
	return e.Prefix + strings.ToUpper(envReplacer.Replace(key))
}

func (e Env) Get(_ context.Context, key string) (string, error) {
	for _, name := range []string{e.Prefix + key, e.EnvName(key)} {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
	}
	return "", errors.Wrapf(errors.ErrNotFound, "environment variable %s", e.EnvName(key))
}
