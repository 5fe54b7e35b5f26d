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

package agent

// Kind Agent 流事件类型；未知类型统一为 KindOther 并保留原始类型名
type Kind string

const (
	KindTextDelta     Kind = "text_delta"
	KindText          Kind = "text"
	KindMessage       Kind = "message"
	KindToolCallStart Kind = "tool_call_start"
	KindToolCallDelta Kind = "tool_call_delta"
	KindToolCallEnd   Kind = "tool_call_end"
	KindResponseEnd   Kind = "response_end"
	KindDone          Kind = "done"
	KindError         Kind = "error"
	KindCancelled     Kind = "cancelled"
	KindOther         Kind = "other"
)

// Event Agent 产生的单个流事件
type Event struct {
	Kind Kind
	// RawType 仅 KindOther 时有意义，记录上游原始类型
	RawType string

	Content string

	ToolCallID     string
	ToolName       string
	ArgumentsDelta string
	// Arguments tool_call_end 时为完整参数文本
	Arguments string
}

// Terminal 是否为结束本次流的事件
func (e Event) Terminal() bool {
	switch e.Kind {
	case KindResponseEnd, KindDone, KindError, KindCancelled:
		return true
	}
	return false
}

func textDelta(s string) Event { return Event{Kind: KindTextDelta, Content: s} }

func errorEvent(err error) Event { return Event{Kind: KindError, Content: err.Error()} }
