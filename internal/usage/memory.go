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
	"sync"
	"time"
)

// MemoryTracker 进程内使用记录
type MemoryTracker struct {
	mu     sync.Mutex
	last   map[string]time.Time
	events []Event
	now    func() time.Time
}

// Event 一条使用记录
type Event struct {
	User      string    `json:"user"`
	Method    string    `json:"method"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMemoryTracker 创建内存 Tracker
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{last: make(map[string]time.Time), now: time.Now}
}

// Track 实现 Tracker
func (m *MemoryTracker) Track(_ context.Context, user, method string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	key := user + "|" + method
	if t, ok := m.last[key]; ok && now.Sub(t) < Window {
		return false, nil
	}
	m.last[key] = now
	m.events = append(m.events, Event{User: user, Method: method, Timestamp: now})
	observe(method, true)
	return true, nil
}

// Events 已记录的事件副本
func (m *MemoryTracker) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Close 实现 Tracker
func (m *MemoryTracker) Close() error { return nil }
