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

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/iddy-ani/codex/pkg/errors"
	"github.com/iddy-ani/codex/pkg/metrics"
	"github.com/iddy-ani/codex/pkg/tracing"
)

// AbandonedToolOutput 未提交结果即开启新回合时补写的工具消息
const AbandonedToolOutput = "Tool call abandoned by user"

// EinoAgent 基于 eino ToolCallingChatModel 的流式 Agent，一个会话一个实例
type EinoAgent struct {
	cfg   SessionConfig
	chat  model.ToolCallingChatModel
	tools map[string]tool.InvokableTool

	mu      sync.Mutex
	history []*schema.Message
	pending []ToolCall
}

// NewEinoAgent 绑定工具并创建 Agent
func NewEinoAgent(ctx context.Context, chat model.ToolCallingChatModel, cfg SessionConfig) (*EinoAgent, error) {
	if chat == nil {
		return nil, errors.Invalidf("chat model is required")
	}
	a := &EinoAgent{cfg: cfg, tools: make(map[string]tool.InvokableTool)}
	var infos []*schema.ToolInfo
	for _, t := range NewTools(cfg) {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, err
		}
		a.tools[info.Name] = t
		infos = append(infos, info)
	}
	bound, err := chat.WithTools(infos)
	if err != nil {
		return nil, errors.Wrap(err, "bind tools")
	}
	a.chat = bound
	return a, nil
}

// ProcessTurn 实现 Agent
func (a *EinoAgent) ProcessTurn(ctx context.Context, prompt string) (*schema.StreamReader[Event], error) {
	a.mu.Lock()
	staged := a.closePendingLocked(nil)
	staged = append(staged, schema.UserMessage(prompt))
	a.mu.Unlock()
	return a.stream(ctx, staged)
}

// Continue 实现 Agent；未出现在 results 中的待处理调用按放弃处理
func (a *EinoAgent) Continue(ctx context.Context, results []ToolResult) (*schema.StreamReader[Event], error) {
	a.mu.Lock()
	staged := a.closePendingLocked(results)
	a.mu.Unlock()
	return a.stream(ctx, staged)
}

// closePendingLocked 为每个待处理调用生成工具消息，顺序与模型给出的调用顺序一致
func (a *EinoAgent) closePendingLocked(results []ToolResult) []*schema.Message {
	if len(a.pending) == 0 {
		return nil
	}
	byID := make(map[string]string, len(results))
	for _, r := range results {
		byID[r.ToolCallID] = r.Output
	}
	msgs := make([]*schema.Message, 0, len(a.pending))
	for _, c := range a.pending {
		out, ok := byID[c.ID]
		if !ok {
			out = AbandonedToolOutput
		}
		msgs = append(msgs, schema.ToolMessage(out, c.ID))
	}
	return msgs
}

// PendingToolCalls 实现 Agent
func (a *EinoAgent) PendingToolCalls() []ToolCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ToolCall, len(a.pending))
	copy(out, a.pending)
	return out
}

// ExecuteTool 实现 Agent
func (a *EinoAgent) ExecuteTool(ctx context.Context, call ToolCall, opts ExecOptions) (out string, err error) {
	t, ok := a.tools[call.Name]
	if !ok {
		return "", errors.Invalidf("unknown tool %q", call.Name)
	}
	ctx, span := tracing.StartToolSpan(ctx, call.Name, call.ID)
	start := time.Now()
	defer func() {
		metrics.ToolDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
		tracing.Finish(span, err)
	}()
	return t.InvokableRun(ctx, call.Arguments, withExecOptions(opts))
}

func (a *EinoAgent) messages(staged []*schema.Message) []*schema.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := make([]*schema.Message, 0, len(a.history)+len(staged)+1)
	if sp := a.cfg.SystemPrompt(); sp != "" {
		msgs = append(msgs, schema.SystemMessage(sp))
	}
	msgs = append(msgs, a.history...)
	return append(msgs, staged...)
}

// stream 发起模型流；staged 在模型请求建立后才写入历史
func (a *EinoAgent) stream(ctx context.Context, staged []*schema.Message) (*schema.StreamReader[Event], error) {
	if err := ctx.Err(); err != nil {
		return cancelledStream(), nil
	}
	sr, err := a.chat.Stream(ctx, a.messages(staged))
	if err != nil {
		if ctx.Err() != nil {
			return cancelledStream(), nil
		}
		return nil, errors.Wrap(err, "model stream")
	}

	a.mu.Lock()
	a.history = append(a.history, staged...)
	a.pending = nil
	a.mu.Unlock()

	out, w := schema.Pipe[Event](64)
	go a.pump(ctx, sr, w)
	return out, nil
}

func cancelledStream() *schema.StreamReader[Event] {
	return schema.StreamReaderFromArray([]Event{{Kind: KindCancelled}})
}

// callAcc 按 index 累积流式工具调用
type callAcc struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

func (a *EinoAgent) pump(ctx context.Context, sr *schema.StreamReader[*schema.Message], w *schema.StreamWriter[Event]) {
	defer w.Close()
	defer sr.Close()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("agent stream panic", "panic", r)
			w.Send(errorEvent(fmt.Errorf("agent stream panic: %v", r)), nil)
		}
	}()

	send := func(e Event) bool { return !w.Send(e, nil) }

	var chunks []*schema.Message
	calls := map[int]*callAcc{}
	for {
		chunk, err := sr.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				send(Event{Kind: KindCancelled})
				return
			}
			send(errorEvent(err))
			return
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" && !send(textDelta(chunk.Content)) {
			return
		}
		for i, tc := range chunk.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			acc, seen := calls[idx]
			if !seen {
				acc = &callAcc{index: idx, id: tc.ID, name: tc.Function.Name}
				if acc.id == "" {
					acc.id = "call_" + uuid.NewString()
				}
				calls[idx] = acc
				if !send(Event{Kind: KindToolCallStart, ToolCallID: acc.id, ToolName: acc.name}) {
					return
				}
			} else if acc.name == "" && tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				acc.args.WriteString(tc.Function.Arguments)
				if !send(Event{Kind: KindToolCallDelta, ToolCallID: acc.id, ArgumentsDelta: tc.Function.Arguments}) {
					return
				}
			}
		}
	}

	ordered := make([]*callAcc, 0, len(calls))
	for _, acc := range calls {
		ordered = append(ordered, acc)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })

	pending := make([]ToolCall, 0, len(ordered))
	for _, acc := range ordered {
		c := ToolCall{ID: acc.id, Name: acc.name, Arguments: acc.args.String()}
		pending = append(pending, c)
		if !send(Event{Kind: KindToolCallEnd, ToolCallID: c.ID, ToolName: c.Name, Arguments: c.Arguments}) {
			return
		}
	}

	if msg := assemble(chunks, pending); msg != nil {
		a.mu.Lock()
		a.history = append(a.history, msg)
		a.pending = pending
		a.mu.Unlock()
	}

	if len(pending) == 0 {
		send(Event{Kind: KindDone})
	}
}

// assemble 合并流式分片为一条 assistant 消息，工具调用以累积结果为准
func assemble(chunks []*schema.Message, pending []ToolCall) *schema.Message {
	if len(chunks) == 0 {
		return nil
	}
	msg, err := schema.ConcatMessages(chunks)
	if err != nil {
		slog.Warn("concat stream chunks failed", "error", err)
		msg = &schema.Message{Role: schema.Assistant}
		for _, c := range chunks {
			msg.Content += c.Content
		}
	}
	recordUsage(msg)
	if len(pending) == 0 {
		msg.ToolCalls = nil
	} else {
		msg.ToolCalls = make([]schema.ToolCall, len(pending))
		for i, c := range pending {
			idx := i
			msg.ToolCalls[i] = schema.ToolCall{
				Index:    &idx,
				ID:       c.ID,
				Type:     "function",
				Function: schema.FunctionCall{Name: c.Name, Arguments: c.Arguments},
			}
		}
	}
	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		return nil
	}
	return msg
}

func recordUsage(msg *schema.Message) {
	if msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return
	}
	u := msg.ResponseMeta.Usage
	metrics.LLMTokensTotal.WithLabelValues("input").Add(float64(u.PromptTokens))
	metrics.LLMTokensTotal.WithLabelValues("output").Add(float64(u.CompletionTokens))
}
