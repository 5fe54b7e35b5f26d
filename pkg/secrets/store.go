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

// Package secrets 密钥读取抽象：模型 API Key 等敏感配置通过 secret://<key> 引用解析
package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/iddy-ani/codex/pkg/errors"
)

// RefPrefix 配置值中的密钥引用前缀
const RefPrefix = "secret://"

// Store 只读密钥来源；不存在时返回 errors.ErrNotFound
type Store interface {
	Get(ctx context.Context, key string) (string, error)
}

// Config Secret Store 配置
type Config struct {
	Provider string      // vault | env | memory
	Vault    VaultConfig // provider=vault 时使用
	// Static provider=memory 时的初始内容
	Static map[string]string
}

// NewStore 创建 Secret Store
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "memory":
		return NewStatic(config.Static), nil
	case "", "env":
		return Env{}, nil
	case "vault":
		vs, err := NewVaultStore(config.Vault)
		if err != nil {
			return nil, err
		}
		return vs, nil
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}

// Resolve 若 value 为 secret://<key> 则从 store 读取，否则原样返回
func Resolve(ctx context.Context, store Store, value string) (string, error) {
	if !strings.HasPrefix(value, RefPrefix) {
		return value, nil
	}
	key := strings.TrimSpace(strings.TrimPrefix(value, RefPrefix))
	if key == "" {
		return "", errors.Invalidf("empty secret reference")
	}
	if store == nil {
		return "", errors.Invalidf("secret %q referenced but no store configured", key)
	}
	v, err := store.Get(ctx, key)
	if err != nil {
		return "", errors.Wrapf(err, "resolve secret %q", key)
	}
	return v, nil
}
