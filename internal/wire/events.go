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

// Package wire 客户端实时通道的事件格式与 Agent 事件翻译
package wire

import "encoding/json"

// 流事件类型（stream.event.type）
const (
	TypeTextDelta     = "text-delta"
	TypeToolCallStart = "tool-call-start"
	TypeToolCallDelta = "tool-call-delta"
	TypeToolCallEnd   = "tool-call-end"
	TypeResponseEnd   = "response-end"
	TypeError         = "error"
	TypeCancelled     = "cancelled"
)

// 服务端 -> 客户端事件名
const (
	EventSessionStarted      = "session-started"
	EventSessionError        = "session-error"
	EventSessionStopped      = "session-stopped"
	EventStream              = "stream"
	EventToolResult          = "tool-result"
	EventError               = "error"
	EventInstructionsUpdated = "instructions-updated"
	EventPong                = "pong"
)

// 客户端 -> 服务端事件名
const (
	EventStartSession = "start-session"
	EventSendMessage  = "send-message"
	EventExecuteTool  = "execute-tool"
	EventStopSession  = "stop-session"
	EventTestMessage  = "test-message"
	EventPing         = "ping"
)

// 工具审批动作
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// StreamEvent 单个流事件
type StreamEvent struct {
	Type                  string `json:"type"`
	Content               string `json:"content,omitempty"`
	ToolCallID            string `json:"tool_call_id,omitempty"`
	ToolFunctionName      string `json:"tool_function_name,omitempty"`
	ToolArgumentsDelta    string `json:"tool_arguments_delta,omitempty"`
	ToolArgumentsComplete string `json:"tool_arguments_complete,omitempty"`
}

// MarshalJSON 按事件类型输出固定字段集合，空字符串字段同样保留
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeTextDelta, TypeError:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}{e.Type, e.Content})
	case TypeToolCallStart:
		return json.Marshal(struct {
			Type             string `json:"type"`
			ToolCallID       string `json:"tool_call_id"`
			ToolFunctionName string `json:"tool_function_name"`
		}{e.Type, e.ToolCallID, e.ToolFunctionName})
	case TypeToolCallDelta:
		return json.Marshal(struct {
			Type               string `json:"type"`
			ToolCallID         string `json:"tool_call_id"`
			ToolArgumentsDelta string `json:"tool_arguments_delta"`
		}{e.Type, e.ToolCallID, e.ToolArgumentsDelta})
	case TypeToolCallEnd:
		return json.Marshal(struct {
			Type                  string `json:"type"`
			ToolCallID            string `json:"tool_call_id"`
			ToolFunctionName      string `json:"tool_function_name"`
			ToolArgumentsComplete string `json:"tool_arguments_complete"`
		}{e.Type, e.ToolCallID, e.ToolFunctionName, e.ToolArgumentsComplete})
	case TypeResponseEnd, TypeCancelled:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{e.Type})
	}
	type plain StreamEvent
	return json.Marshal(plain(e))
}

// StreamPayload stream 事件负载
type StreamPayload struct {
	SessionID string      `json:"session_id"`
	Event     StreamEvent `json:"event"`
}

// SessionStarted session-started 负载
type SessionStarted struct {
	SessionID        string `json:"session_id"`
	Status           string `json:"status"`
	WorkingDirectory string `json:"working_directory"`
	InstructionName  string `json:"instruction_name"`
	Model            string `json:"model,omitempty"`
}

// ToolResult tool-result 负载
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Result     string `json:"result"`
}

// ErrorPayload error / session-error 负载
type ErrorPayload struct {
	Error string `json:"error"`
}

// StartSession start-session 请求
type StartSession struct {
	WorkingDirectory string `json:"working_directory"`
	InstructionName  string `json:"instruction_name,omitempty"`
	Model            string `json:"model,omitempty"`
}

// SendMessage send-message / test-message 请求
type SendMessage struct {
	Message string `json:"message"`
}

// ExecuteTool execute-tool 请求
type ExecuteTool struct {
	ToolCallID string `json:"tool_call_id"`
	Action     string `json:"action"`
}
