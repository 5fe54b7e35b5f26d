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
	"fmt"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"

	"github.com/iddy-ani/codex/pkg/errors"
)

// VaultConfig Vault 配置
type VaultConfig struct {
	Address string // 如 http://vault:8200
	Token   string
	// PathPrefix 读取路径前缀，KV v2 需包含 data 段，如 secret/data/codex
	PathPrefix string
}

// defaultField 引用未指定字段时读取的字段名
const defaultField = "value"

// VaultStore 按 <prefix>/<path>#<field> 读取 Vault 密钥，兼容 KV v1 与 v2 响应，读取结果在进程内缓存
type VaultStore struct {
	logical *vault.Logical
	prefix  string

	mu    sync.Mutex
	cache map[string]map[string]interface{}
}

// NewVaultStore 创建 Vault secret store；Address/Token 为空时沿用 VAULT_ADDR/VAULT_TOKEN
func NewVaultStore(config VaultConfig) (*VaultStore, error) {
	cfg := vault.DefaultConfig()
	if config.Address != "" {
		cfg.Address = config.Address
	}
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}
	prefix := strings.Trim(config.PathPrefix, "/")
	if prefix == "" {
		prefix = "secret"
	}
	return &VaultStore{
		logical: client.Logical(),
		prefix:  prefix,
		cache:   make(map[string]map[string]interface{}),
	}, nil
}

// splitRef 拆分 path#field
func splitRef(key string) (path, field string) {
	path, field, _ = strings.Cut(key, "#")
	if field == "" {
		field = defaultField
	}
	return strings.Trim(path, "/"), field
}

func (v *VaultStore) Get(ctx context.Context, key string) (string, error) {
	path, field := splitRef(key)
	if path == "" {
		return "", errors.Invalidf("empty vault path in %q", key)
	}
	data, err := v.read(ctx, v.prefix+"/"+path)
	if err != nil {
		return "", err
	}
	s, ok := data[field].(string)
	if !ok || s == "" {
		return "", errors.Wrapf(errors.ErrNotFound, "vault field %s in %s", field, path)
	}
	return s, nil
}

func (v *VaultStore) read(ctx context.Context, full string) (map[string]interface{}, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if data, ok := v.cache[full]; ok {
		return data, nil
	}
	secret, err := v.logical.ReadWithContext(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("read vault %s: %w", full, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "vault secret %s", full)
	}
	data := secret.Data
	// KV v2 把字段包在 data.data 中
	if inner, ok := data["data"].(map[string]interface{}); ok {
		data = inner
	}
	v.cache[full] = data
	return data, nil
}
