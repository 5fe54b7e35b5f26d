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

package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisSeenPrefix = "codex:usage:seen:"
	redisLogKey     = "codex:usage:events"
)

// RedisTracker SET NX 去重，LPUSH 追加日志
type RedisTracker struct {
	client *redis.Client
}

// NewRedisTracker 连接 Redis
func NewRedisTracker(ctx context.Context, addr, password string, db int) (*RedisTracker, error) {
	if addr == "" {
		return nil, fmt.Errorf("usage: redis addr is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("usage: ping redis: %w", err)
	}
	return &RedisTracker{client: client}, nil
}

// Track 实现 Tracker
func (r *RedisTracker) Track(ctx context.Context, user, method string) (bool, error) {
	ok, err := r.client.SetNX(ctx, redisSeenPrefix+user+":"+method, 1, Window).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	ev, err := json.Marshal(Event{User: user, Method: method, Timestamp: time.Now().UTC()})
	if err != nil {
		return false, err
	}
	if err := r.client.LPush(ctx, redisLogKey, ev).Err(); err != nil {
		return false, err
	}
	observe(method, true)
	return true, nil
}

// Close 实现 Tracker
func (r *RedisTracker) Close() error { return r.client.Close() }
