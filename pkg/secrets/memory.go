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

	"github.com/iddy-ani/codex/pkg/errors"
)

// Static 固定内容的密钥表，用于测试与本地调试
type Static map[string]string

// NewStatic 复制 m 创建 Static
func NewStatic(m map[string]string) Static {
	s := make(Static, len(m))
	for k, v := range m {
		s[k] = v
	}
	return s
}

func (s Static) Get(_ context.Context, key string) (string, error) {
	if v, ok := s[key]; ok {
		return v, nil
	}
	return "", errors.Wrapf(errors.ErrNotFound, "secret %s", key)
}
