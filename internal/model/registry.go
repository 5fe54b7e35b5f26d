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

package model

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultModel 默认模型
const DefaultModel = "codex-mini"

// DefaultMaxTokens 单次回复最大 token 数
const DefaultMaxTokens = 10000

// Info 模型条目
type Info struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

var (
	registry   = make(map[string]Info)
	order      []string
	registryMu sync.RWMutex
)

func init() {
	for _, m := range []Info{
		{"o3", "O3 - Flagship multimodal reasoning model, excellent for complex coding tasks"},
		{"o3-mini", "O3 Mini - Cost-effective reasoning model, 90% cheaper than O3"},
		{"o3-pro", "O3-Pro - Maximum reasoning power for complex problems"},
		{"gpt-4.1-nano", "GPT-4.1 Nano - Ultra-fast, sub-second latency for simple tasks"},
		{"gpt-4.1-mini", "GPT-4.1 Mini - Balanced speed and quality, 26% cheaper than GPT-4o"},
		{"gpt-4.1", "GPT-4.1 - Latest flagship with 1M token context, excellent for code diffs"},
		{"codex-mini", "Codex Mini - Specialized for code completion and generation"},
		{"gpt-4o", "GPT-4o - Real-time multimodal model with low latency"},
		{"gpt-4", "GPT-4 Turbo - High-quality model with vision capabilities"},
		{"gpt-4-32k", "GPT-4 32k - Large context variant for long documents"},
		{"o1", "O1 - Advanced reasoning model for complex STEM and coding"},
		{"gpt-4.5-preview", "GPT-4.5 Preview - Research preview bridging GPT-4 to GPT-5"},
		{"gpt-35-turbo", "GPT-3.5 Turbo - Fast, cost-effective model for lightweight tasks"},
	} {
		Register(m)
	}
}

// Register 注册模型；同 ID 覆盖描述，保持首次注册的顺序
func Register(m Info) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[m.ID]; !ok {
		order = append(order, m.ID)
	}
	registry[m.ID] = m
}

// Get 按 ID 获取模型
func Get(id string) (Info, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	m, ok := registry[id]
	if !ok {
		return Info{}, fmt.Errorf("model not registered: %s", id)
	}
	return m, nil
}

// IDs 按注册顺序返回模型 ID
func IDs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return append([]string(nil), order...)
}

// Descriptions 模型 ID 到描述
func Descriptions() map[string]string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make(map[string]string, len(registry))
	for id, m := range registry {
		out[id] = m.Description
	}
	return out
}

// Sorted 按 ID 字典序
func Sorted() []Info {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Info, 0, len(registry))
	for _, m := range registry {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
