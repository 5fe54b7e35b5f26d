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

// State 会话流状态
type State int

const (
	// StateIdle 无进行中的流
	StateIdle State = iota
	// StateStreaming 正在转发新回合或续写的流
	StateStreaming
	// StateAwaitingToolApproval 流已结束，等待所有工具调用得到批准或拒绝
	StateAwaitingToolApproval
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateAwaitingToolApproval:
		return "awaiting_tool_approval"
	default:
		return "unknown"
	}
}

// MarshalText 供 JSON 以字符串输出
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RejectedToolOutput 用户拒绝工具调用时记录的结果
const RejectedToolOutput = "Tool execution rejected by user"
