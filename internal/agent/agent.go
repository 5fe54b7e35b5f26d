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

// Package agent 对话 Agent：基于 eino ChatModel 的流式回合、工具调用累积与受限执行
package agent

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// ToolCall 模型请求的一次工具调用
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult 工具调用结果（失败时为错误文本）
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// ExecOptions 工具执行约束
type ExecOptions struct {
	Sandboxed         bool
	AllowedWritePaths []string
}

// Agent Session 依赖的对话引擎
type Agent interface {
	// ProcessTurn 以用户输入开启新回合，返回事件流
	ProcessTurn(ctx context.Context, prompt string) (*schema.StreamReader[Event], error)
	// Continue 提交本批工具结果并继续生成
	Continue(ctx context.Context, results []ToolResult) (*schema.StreamReader[Event], error)
	// PendingToolCalls 最近一次流结束后尚未提交结果的工具调用
	PendingToolCalls() []ToolCall
	// ExecuteTool 执行单个工具调用
	ExecuteTool(ctx context.Context, call ToolCall, opts ExecOptions) (string, error)
}

// Factory 按会话配置创建 Agent
type Factory interface {
	New(ctx context.Context, cfg SessionConfig) (Agent, error)
}

// FactoryFunc 函数适配 Factory
type FactoryFunc func(ctx context.Context, cfg SessionConfig) (Agent, error)

// New 实现 Factory
func (f FactoryFunc) New(ctx context.Context, cfg SessionConfig) (Agent, error) {
	return f(ctx, cfg)
}
