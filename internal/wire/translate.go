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

package wire

import "github.com/iddy-ani/codex/internal/agent"

// UnknownError 错误事件缺少内容时的默认文本
const UnknownError = "Unknown error"

// Translate 将 Agent 事件翻译为流事件；ok=false 表示该事件不产生输出
func Translate(e agent.Event) (StreamEvent, bool) {
	switch e.Kind {
	case agent.KindTextDelta, agent.KindText, agent.KindMessage:
		return StreamEvent{Type: TypeTextDelta, Content: e.Content}, true
	case agent.KindToolCallStart:
		return StreamEvent{Type: TypeToolCallStart, ToolCallID: e.ToolCallID, ToolFunctionName: e.ToolName}, true
	case agent.KindToolCallDelta:
		return StreamEvent{Type: TypeToolCallDelta, ToolCallID: e.ToolCallID, ToolArgumentsDelta: e.ArgumentsDelta}, true
	case agent.KindToolCallEnd:
		return StreamEvent{
			Type:                  TypeToolCallEnd,
			ToolCallID:            e.ToolCallID,
			ToolFunctionName:      e.ToolName,
			ToolArgumentsComplete: e.Arguments,
		}, true
	case agent.KindResponseEnd, agent.KindDone:
		return StreamEvent{Type: TypeResponseEnd}, true
	case agent.KindError:
		msg := e.Content
		if msg == "" {
			msg = UnknownError
		}
		return StreamEvent{Type: TypeError, Content: msg}, true
	case agent.KindCancelled:
		return StreamEvent{Type: TypeCancelled}, true
	default:
		if e.Content != "" {
			return StreamEvent{Type: TypeTextDelta, Content: e.Content}, true
		}
		return StreamEvent{}, false
	}
}

// Frame 实时通道上的一帧：{"event": name, "data": {...}}
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}
