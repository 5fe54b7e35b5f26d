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

// Package usage 记录谁在使用会话；同一用户同一方法每小时至多记录一次
package usage

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/iddy-ani/codex/pkg/config"
	"github.com/iddy-ani/codex/pkg/metrics"
)

// Window 去重窗口
const Window = time.Hour

// MethodWebSession 通过实时通道启动会话
const MethodWebSession = "web_session"

// Tracker 使用记录
type Tracker interface {
	// Track 记录一次使用；recorded 为 false 表示落在去重窗口内
	Track(ctx context.Context, user, method string) (recorded bool, err error)
	Close() error
}

// NewTracker 根据配置创建 Tracker；未启用时返回 Nop
func NewTracker(ctx context.Context, cfg config.UsageConfig) (Tracker, error) {
	if !cfg.Enable {
		return Nop{}, nil
	}
	switch cfg.Type {
	case "", "memory":
		return NewMemoryTracker(), nil
	case "postgres":
		return NewPostgresTracker(ctx, cfg.DSN)
	case "redis":
		return NewRedisTracker(ctx, cfg.Addr, cfg.Password, cfg.DB)
	default:
		return nil, fmt.Errorf("unsupported usage tracker type: %s", cfg.Type)
	}
}

// CurrentUser 当前操作系统用户名
func CurrentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, k := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return "unknown"
}

// Nop 不记录
type Nop struct{}

// Track 实现 Tracker
func (Nop) Track(context.Context, string, string) (bool, error) { return false, nil }

// Close 实现 Tracker
func (Nop) Close() error { return nil }

func observe(method string, recorded bool) {
	if recorded {
		metrics.UsageEventsTotal.WithLabelValues(method).Inc()
	}
}
