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

// Package session 每连接一个会话：流式回合驱动、工具调用审批与续写
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/iddy-ani/codex/internal/agent"
	"github.com/iddy-ani/codex/internal/wire"
	"github.com/iddy-ani/codex/pkg/errors"
	"github.com/iddy-ani/codex/pkg/log"
	"github.com/iddy-ani/codex/pkg/metrics"
	"github.com/iddy-ani/codex/pkg/tracing"
)

// Publisher 会话事件出口（通常为一个实时连接）
type Publisher interface {
	Publish(event string, data any)
}

// PublisherFunc 函数适配 Publisher
type PublisherFunc func(event string, data any)

// Publish 实现 Publisher
func (f PublisherFunc) Publish(event string, data any) { f(event, data) }

// Options 创建 Session 的参数
type Options struct {
	ID              string
	WorkingDir      string
	InstructionName string
	Model           string
	Agent           agent.Agent
	Publisher       Publisher
	Logger          *log.Logger
}

// Session 一个客户端连接对应的会话
type Session struct {
	ID              string
	WorkingDir      string
	InstructionName string
	Model           string
	CreatedAt       time.Time

	agent  agent.Agent
	pub    Publisher
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// turnMu 同一时刻只允许一个流（新回合或续写）
	turnMu sync.Mutex
	wg     sync.WaitGroup

	mu        sync.Mutex
	active    bool
	state     State
	waiting   bool
	gen       uint64
	pending   map[string]agent.ToolCall
	order     []string
	results   map[string]agent.ToolResult
	resolving map[string]bool
	// settled 上一批已记录结果的调用 id，重复审批据此忽略；记录新一批待处理调用时重置
	settled map[string]bool
}

// Snapshot 会话只读视图
type Snapshot struct {
	ID               string    `json:"session_id"`
	WorkingDirectory string    `json:"working_directory"`
	InstructionName  string    `json:"instruction_name"`
	Model            string    `json:"model,omitempty"`
	State            State     `json:"state"`
	Active           bool      `json:"active"`
	Waiting          bool      `json:"waiting_for_tools"`
	PendingToolCalls []string  `json:"pending_tool_calls"`
	ResolvedToolCall []string  `json:"resolved_tool_calls"`
	CreatedAt        time.Time `json:"created_at"`
}

// New 创建 Session；parent 取消时会话的所有流随之取消
func New(parent context.Context, opts Options) *Session {
	if parent == nil {
		parent = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:              opts.ID,
		WorkingDir:      opts.WorkingDir,
		InstructionName: opts.InstructionName,
		Model:           opts.Model,
		CreatedAt:       time.Now(),
		agent:           opts.Agent,
		pub:             opts.Publisher,
		logger:          logger.With("session_id", opts.ID),
		ctx:             ctx,
		cancel:          cancel,
		active:          true,
		pending:         make(map[string]agent.ToolCall),
		results:         make(map[string]agent.ToolResult),
		resolving:       make(map[string]bool),
		settled:         make(map[string]bool),
	}
}

// Active 会话是否仍可用
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// State 当前流状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot 返回当前状态快照
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:               s.ID,
		WorkingDirectory: s.WorkingDir,
		InstructionName:  s.InstructionName,
		Model:            s.Model,
		State:            s.state,
		Active:           s.active,
		Waiting:          s.waiting,
		PendingToolCalls: []string{},
		ResolvedToolCall: []string{},
		CreatedAt:        s.CreatedAt,
	}
	for _, id := range s.order {
		if _, ok := s.pending[id]; ok {
			snap.PendingToolCalls = append(snap.PendingToolCalls, id)
		}
		if _, ok := s.results[id]; ok {
			snap.ResolvedToolCall = append(snap.ResolvedToolCall, id)
		}
	}
	return snap
}

// SendMessage 开启新回合；已有流在进行时返回 ErrBusy
func (s *Session) SendMessage(message string) error {
	if !s.Active() {
		return errors.ErrInactive
	}
	if !s.turnMu.TryLock() {
		return errors.ErrBusy
	}
	s.mu.Lock()
	if s.state == StateStreaming {
		// 续写已排定但尚未取得流锁
		s.mu.Unlock()
		s.turnMu.Unlock()
		return errors.ErrBusy
	}
	s.clearToolStateLocked()
	s.settled = make(map[string]bool)
	s.state = StateStreaming
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.turnMu.Unlock()
		s.drive("turn", func(ctx context.Context) (*schema.StreamReader[agent.Event], error) {
			return s.agent.ProcessTurn(ctx, message)
		})
	}()
	return nil
}

// ResolveToolCall 批准或拒绝一个待处理的工具调用；重复处理同一 id 为空操作
func (s *Session) ResolveToolCall(ctx context.Context, toolCallID, action string) error {
	if action != wire.ActionApprove && action != wire.ActionReject {
		return errors.Invalidf("unknown action %q", action)
	}
	s.mu.Lock()
	if s.settled[toolCallID] || s.resolving[toolCallID] {
		s.mu.Unlock()
		return nil
	}
	if _, ok := s.pending[toolCallID]; !ok && s.state == StateStreaming {
		// 流尚未结束时待处理列表还未记录，等待当前流结束后再判定
		s.mu.Unlock()
		s.turnMu.Lock()
		s.turnMu.Unlock()
		s.mu.Lock()
	}
	if !s.active {
		s.mu.Unlock()
		return errors.ErrInactive
	}
	if s.settled[toolCallID] || s.resolving[toolCallID] {
		s.mu.Unlock()
		return nil
	}
	call, ok := s.pending[toolCallID]
	if !ok {
		s.mu.Unlock()
		return errors.Invalidf("unknown tool call: %s", toolCallID)
	}
	s.resolving[toolCallID] = true
	gen := s.gen
	s.mu.Unlock()

	metrics.ToolCallsTotal.WithLabelValues(action).Inc()
	output := RejectedToolOutput
	if action == wire.ActionApprove {
		output = s.execute(ctx, call)
	}
	s.complete(gen, agent.ToolResult{ToolCallID: toolCallID, Output: output})
	return nil
}

func (s *Session) execute(ctx context.Context, call agent.ToolCall) (out string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tool execution panic", "tool_call_id", call.ID, "panic", r)
			out = fmt.Sprintf("Error: tool panicked: %v", r)
		}
	}()
	ctx, cancel := mergeCancel(ctx, s.ctx)
	defer cancel()
	res, err := s.agent.ExecuteTool(ctx, call, agent.ExecOptions{
		Sandboxed:         true,
		AllowedWritePaths: []string{s.WorkingDir},
	})
	if err != nil {
		s.logger.Warn("tool execution failed", "tool_call_id", call.ID, "tool", call.Name, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	return res
}

// complete 记录结果；当本批全部完成时发起续写
func (s *Session) complete(gen uint64, res agent.ToolResult) {
	s.mu.Lock()
	if gen != s.gen || !s.active {
		// 期间已开启新回合或会话已停止，结果作废
		delete(s.resolving, res.ToolCallID)
		s.mu.Unlock()
		return
	}
	delete(s.resolving, res.ToolCallID)
	s.results[res.ToolCallID] = res
	s.settled[res.ToolCallID] = true
	s.mu.Unlock()

	s.publish(wire.EventToolResult, wire.ToolResult{ToolCallID: res.ToolCallID, Result: res.Output})

	s.mu.Lock()
	if gen != s.gen || !s.waiting || !s.allResolvedLocked() {
		s.mu.Unlock()
		return
	}
	batch := make([]agent.ToolResult, 0, len(s.order))
	for _, id := range s.order {
		batch = append(batch, s.results[id])
		delete(s.pending, id)
	}
	s.waiting = false
	s.state = StateStreaming
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.turnMu.Lock()
		defer s.turnMu.Unlock()
		s.mu.Lock()
		stale := gen != s.gen || !s.active
		s.mu.Unlock()
		if stale {
			return
		}
		s.drive("continuation", func(ctx context.Context) (*schema.StreamReader[agent.Event], error) {
			return s.agent.Continue(ctx, batch)
		})
	}()
}

func (s *Session) allResolvedLocked() bool {
	for id := range s.pending {
		if _, ok := s.results[id]; !ok {
			return false
		}
	}
	return len(s.pending) > 0
}

// clearToolStateLocked 清空待处理调用与结果，并作废进行中的审批
func (s *Session) clearToolStateLocked() {
	s.gen++
	s.pending = make(map[string]agent.ToolCall)
	s.results = make(map[string]agent.ToolResult)
	s.resolving = make(map[string]bool)
	s.order = nil
	s.waiting = false
}

// drive 转发一次流；调用方持有 turnMu
func (s *Session) drive(kind string, start func(ctx context.Context) (*schema.StreamReader[agent.Event], error)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stream panic", "kind", kind, "panic", r)
			s.fail(fmt.Errorf("internal error: %v", r))
		}
	}()
	ctx, span := tracing.StartTurnSpan(s.ctx, s.ID, kind)
	defer span.End()
	begin := time.Now()
	defer func() {
		metrics.TurnDuration.WithLabelValues(kind).Observe(time.Since(begin).Seconds())
	}()

	sr, err := start(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	defer sr.Close()

	sawEnd, aborted := false, false
	for {
		ev, err := sr.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.fail(err)
			return
		}
		if !s.Active() {
			return
		}
		we, ok := wire.Translate(ev)
		if !ok {
			continue
		}
		switch we.Type {
		case wire.TypeResponseEnd:
			// 延后到流结束统一判定，保证每个回合恰好一次
			sawEnd = true
			continue
		case wire.TypeError, wire.TypeCancelled:
			aborted = true
		}
		s.publishStream(we)
	}
	if !s.Active() {
		return
	}

	var pending []agent.ToolCall
	if !aborted {
		pending = s.agent.PendingToolCalls()
	}

	s.mu.Lock()
	if len(pending) > 0 {
		s.clearToolStateLocked()
		s.settled = make(map[string]bool)
		for _, c := range pending {
			s.pending[c.ID] = c
			s.order = append(s.order, c.ID)
		}
		s.waiting = true
		s.state = StateAwaitingToolApproval
		s.mu.Unlock()
		s.logger.Info("awaiting tool approval", "kind", kind, "tool_calls", len(pending))
		return
	}
	s.clearToolStateLocked()
	s.state = StateIdle
	s.mu.Unlock()

	if aborted {
		return
	}
	if !sawEnd {
		s.logger.Debug("stream ended without terminal event, emitting response-end", "kind", kind)
	}
	s.publishStream(wire.StreamEvent{Type: wire.TypeResponseEnd})
}

// fail 将错误作为流事件发布，并清空工具状态
func (s *Session) fail(err error) {
	s.logger.Error("stream failed", "error", err)
	s.mu.Lock()
	s.clearToolStateLocked()
	s.state = StateIdle
	s.mu.Unlock()
	msg := err.Error()
	if msg == "" {
		msg = wire.UnknownError
	}
	s.publishStream(wire.StreamEvent{Type: wire.TypeError, Content: msg})
}

func (s *Session) publishStream(e wire.StreamEvent) {
	metrics.StreamEventsTotal.WithLabelValues(e.Type).Inc()
	s.publish(wire.EventStream, wire.StreamPayload{SessionID: s.ID, Event: e})
}

func (s *Session) publish(event string, data any) {
	if s.pub == nil || !s.Active() {
		return
	}
	s.pub.Publish(event, data)
}

// Stop 停止会话：不再转发事件并尽力取消进行中的模型请求；可重复调用
func (s *Session) Stop() {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.clearToolStateLocked()
	s.state = StateIdle
	s.mu.Unlock()
	s.cancel()
	if wasActive {
		s.logger.Info("session stopped")
	}
}

// Wait 等待所有流与续写 goroutine 退出
func (s *Session) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mergeCancel 返回在 a 或 b 任一取消时取消的 context，值取自 a
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
