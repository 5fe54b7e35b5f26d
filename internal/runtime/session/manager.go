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

package session

import (
	"context"
	"sort"
	"sync"

	"github.com/iddy-ani/codex/pkg/log"
	"github.com/iddy-ani/codex/pkg/metrics"
)

// Manager 会话注册表：连接 id -> Session，由服务对象持有并随服务停止
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *log.Logger
}

// NewManager 创建注册表
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Nop()
	}
	return &Manager{sessions: make(map[string]*Session), logger: logger}
}

// Create 创建并登记 Session；同 id 已存在时先停止旧会话再替换
func (m *Manager) Create(ctx context.Context, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = m.logger
	}
	s := New(ctx, opts)
	m.mu.Lock()
	old := m.sessions[opts.ID]
	m.sessions[opts.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()
	if old != nil {
		old.Stop()
		m.logger.Info("session replaced", "session_id", opts.ID)
	}
	metrics.SessionsActive.Set(float64(n))
	return s
}

// Get 按 id 查找
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove 停止并移除会话，返回是否存在
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if ok {
		s.Stop()
		metrics.SessionsActive.Set(float64(n))
	}
	return ok
}

// Len 当前会话数
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List 所有会话快照，按创建时间排序
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()
	out := make([]Snapshot, 0, len(all))
	for _, s := range all {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// StopAll 停止并移除全部会话，等待其流退出或 ctx 到期
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Stop()
	}
	metrics.SessionsActive.Set(0)
	for _, s := range all {
		if err := s.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
