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

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iddy-ani/codex/internal/agent"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		in   agent.Event
		want StreamEvent
	}{
		{"text delta", agent.Event{Kind: agent.KindTextDelta, Content: "hi"}, StreamEvent{Type: TypeTextDelta, Content: "hi"}},
		{"text", agent.Event{Kind: agent.KindText, Content: "a"}, StreamEvent{Type: TypeTextDelta, Content: "a"}},
		{"message", agent.Event{Kind: agent.KindMessage, Content: "m"}, StreamEvent{Type: TypeTextDelta, Content: "m"}},
		{"tool start", agent.Event{Kind: agent.KindToolCallStart, ToolCallID: "c1", ToolName: "shell"},
			StreamEvent{Type: TypeToolCallStart, ToolCallID: "c1", ToolFunctionName: "shell"}},
		{"tool delta", agent.Event{Kind: agent.KindToolCallDelta, ToolCallID: "c1", ArgumentsDelta: `{"a`},
			StreamEvent{Type: TypeToolCallDelta, ToolCallID: "c1", ToolArgumentsDelta: `{"a`}},
		{"tool end", agent.Event{Kind: agent.KindToolCallEnd, ToolCallID: "c1", ToolName: "shell", Arguments: `{"a":1}`},
			StreamEvent{Type: TypeToolCallEnd, ToolCallID: "c1", ToolFunctionName: "shell", ToolArgumentsComplete: `{"a":1}`}},
		{"response end", agent.Event{Kind: agent.KindResponseEnd}, StreamEvent{Type: TypeResponseEnd}},
		{"done", agent.Event{Kind: agent.KindDone}, StreamEvent{Type: TypeResponseEnd}},
		{"error", agent.Event{Kind: agent.KindError, Content: "boom"}, StreamEvent{Type: TypeError, Content: "boom"}},
		{"error empty", agent.Event{Kind: agent.KindError}, StreamEvent{Type: TypeError, Content: UnknownError}},
		{"cancelled", agent.Event{Kind: agent.KindCancelled}, StreamEvent{Type: TypeCancelled}},
		{"unknown with content", agent.Event{Kind: agent.KindOther, RawType: "reasoning", Content: "thinking"},
			StreamEvent{Type: TypeTextDelta, Content: "thinking"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Translate(tc.in)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTranslate_UnknownEmpty(t *testing.T) {
	_, ok := Translate(agent.Event{Kind: agent.KindOther, RawType: "heartbeat"})
	assert.False(t, ok)
	_, ok = Translate(agent.Event{Kind: "made_up"})
	assert.False(t, ok)
}

func TestFrameJSON(t *testing.T) {
	data, err := json.Marshal(Frame{Event: EventStream, Data: StreamPayload{
		SessionID: "s1",
		Event:     StreamEvent{Type: TypeToolCallStart, ToolCallID: "c1", ToolFunctionName: "shell"},
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"stream","data":{"session_id":"s1","event":{"type":"tool-call-start","tool_call_id":"c1","tool_function_name":"shell"}}}`, string(data))
}

func TestStreamEventJSON_EmptyFieldsKept(t *testing.T) {
	cases := []struct {
		in   StreamEvent
		want string
	}{
		{StreamEvent{Type: TypeTextDelta}, `{"type":"text-delta","content":""}`},
		{StreamEvent{Type: TypeToolCallEnd, ToolCallID: "c1", ToolFunctionName: "shell"},
			`{"type":"tool-call-end","tool_call_id":"c1","tool_function_name":"shell","tool_arguments_complete":""}`},
		{StreamEvent{Type: TypeToolCallDelta, ToolCallID: "c1"}, `{"type":"tool-call-delta","tool_call_id":"c1","tool_arguments_delta":""}`},
		{StreamEvent{Type: TypeResponseEnd, Content: "ignored"}, `{"type":"response-end"}`},
		{StreamEvent{Type: TypeError, Content: "boom"}, `{"type":"error","content":"boom"}`},
		{StreamEvent{Type: TypeCancelled}, `{"type":"cancelled"}`},
	}
	for _, tc := range cases {
		data, err := json.Marshal(tc.in)
		require.NoError(t, err)
		assert.JSONEq(t, tc.want, string(data), tc.in.Type)
	}
}
