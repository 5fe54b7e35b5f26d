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

package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/iddy-ani/codex/internal/instructions"
	"github.com/iddy-ani/codex/internal/runtime/session"
	"github.com/iddy-ani/codex/internal/usage"
	"github.com/iddy-ani/codex/pkg/config"
	"github.com/iddy-ani/codex/pkg/log"
	"github.com/iddy-ani/codex/pkg/secrets"
)

// Bootstrap 统一初始化：日志、密钥、指令存储、使用记录与会话注册表
type Bootstrap struct {
	Config       *config.Config
	Logger       *log.Logger
	Secrets      secrets.Store
	Instructions *instructions.Store
	Tracker      usage.Tracker
	Sessions     *session.Manager
	// APIKey 已解析的模型密钥
	APIKey string
}

// NewBootstrap 根据配置创建 Bootstrap
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}

	secretStore, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Vault: secrets.VaultConfig{
			Address:    cfg.Secrets.Vault.Address,
			Token:      cfg.Secrets.Vault.Token,
			PathPrefix: cfg.Secrets.Vault.Prefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化密钥存储failed: %w", err)
	}
	apiKey, err := secrets.Resolve(ctx, secretStore, cfg.Agent.APIKey)
	if err != nil {
		return nil, fmt.Errorf("解析 agent.api_key failed: %w", err)
	}
	// 未设置的 ${ENV} 占位按空处理
	if strings.HasPrefix(apiKey, "${") {
		apiKey = ""
	}
	if apiKey == "" {
		logger.Warn("agent.api_key is not set, sessions will fail to start")
	}

	store, err := instructions.Open(cfg.Instructions.BaseDir, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化指令存储failed: %w", err)
	}

	tracker, err := usage.NewTracker(ctx, cfg.Usage)
	if err != nil {
		logger.Warn("usage tracker unavailable, tracking disabled", "type", cfg.Usage.Type, "error", err)
		tracker = usage.Nop{}
	}

	return &Bootstrap{
		Config:       cfg,
		Logger:       logger,
		Secrets:      secretStore,
		Instructions: store,
		Tracker:      tracker,
		Sessions:     session.NewManager(logger),
		APIKey:       apiKey,
	}, nil
}

// Close 释放 Bootstrap 持有的外部连接
func (b *Bootstrap) Close() error {
	if b.Tracker != nil {
		return b.Tracker.Close()
	}
	return nil
}
