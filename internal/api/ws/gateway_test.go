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

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/hertz-contrib/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iddy-ani/codex/internal/agent"
	"github.com/iddy-ani/codex/internal/instructions"
	"github.com/iddy-ani/codex/internal/runtime/session"
	"github.com/iddy-ani/codex/internal/usage"
	"github.com/iddy-ani/codex/internal/wire"
)

var errConnClosed = errors.New("use of closed connection")

// fakeConn 以通道模拟 WebSocket 连接
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), out: make(chan []byte, 256), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b, ok := <-c.in:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return websocket.TextMessage, b, nil
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(t int, data []byte) error {
	if t != websocket.TextMessage {
		return nil
	}
	select {
	case c.out <- data:
		return nil
	case <-c.closed:
		return errConnClosed
	}
}

func (c *fakeConn) SetReadDeadline(time.Time) error     { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error    { return nil }
func (c *fakeConn) SetReadLimit(int64)                  {}
func (c *fakeConn) SetPongHandler(func(string) error)   {}
func (c *fakeConn) Close() error                        { c.once.Do(func() { close(c.closed) }); return nil }

// scriptAgent 依次回放脚本化的流
type scriptAgent struct {
	mu       sync.Mutex
	streams  [][]agent.Event
	pendings [][]agent.ToolCall
	current  []agent.ToolCall
	results  [][]agent.ToolResult
	opts     []agent.ExecOptions
}

func (a *scriptAgent) next() *schema.StreamReader[agent.Event] {
	a.mu.Lock()
	defer a.mu.Unlock()
	var events []agent.Event
	if len(a.streams) > 0 {
		events, a.streams = a.streams[0], a.streams[1:]
	}
	a.current = nil
	if len(a.pendings) > 0 {
		a.current, a.pendings = a.pendings[0], a.pendings[1:]
	}
	return schema.StreamReaderFromArray(events)
}

func (a *scriptAgent) ProcessTurn(context.Context, string) (*schema.StreamReader[agent.Event], error) {
	return a.next(), nil
}

func (a *scriptAgent) Continue(_ context.Context, results []agent.ToolResult) (*schema.StreamReader[agent.Event], error) {
	a.mu.Lock()
	a.results = append(a.results, results)
	a.mu.Unlock()
	return a.next(), nil
}

func (a *scriptAgent) PendingToolCalls() []agent.ToolCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]agent.ToolCall(nil), a.current...)
}

func (a *scriptAgent) ExecuteTool(_ context.Context, call agent.ToolCall, opts agent.ExecOptions) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts = append(a.opts, opts)
	return "ran " + call.Name, nil
}

type harness struct {
	t        *testing.T
	g        *Gateway
	conn     *fakeConn
	sessions *session.Manager
	store    *instructions.Store
	agent    *scriptAgent
	tracker  *usage.MemoryTracker
	cfgs     []agent.SessionConfig
	done     chan struct{}
	mu       sync.Mutex
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	store, err := instructions.Open(t.TempDir(), nil)
	require.NoError(t, err)
	h := &harness{
		t:        t,
		conn:     newFakeConn(),
		sessions: session.NewManager(nil),
		store:    store,
		agent:    &scriptAgent{},
		tracker:  usage.NewMemoryTracker(),
		done:     make(chan struct{}),
	}
	factory := agent.FactoryFunc(func(ctx context.Context, cfg agent.SessionConfig) (agent.Agent, error) {
		h.mu.Lock()
		h.cfgs = append(h.cfgs, cfg)
		h.mu.Unlock()
		return h.agent, nil
	})
	h.g = NewGateway(context.Background(), Deps{
		Sessions: h.sessions,
		Store:    store,
		Factory:  factory,
		Base:     agent.SessionConfig{Model: "codex-mini", DisableProjectDoc: true},
		Tracker:  h.tracker,
	}, opts)
	h.g.testDelay = 0
	go func() {
		defer close(h.done)
		h.g.Serve(h.conn)
	}()
	t.Cleanup(h.close)
	return h
}

func (h *harness) close() {
	h.conn.Close()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		h.t.Error("Serve did not return")
	}
}

func (h *harness) send(event string, data any) {
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(h.t, err)
	h.conn.in <- raw
}

type gotFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (h *harness) next() gotFrame {
	h.t.Helper()
	select {
	case raw := <-h.conn.out:
		var f gotFrame
		require.NoError(h.t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for frame")
		return gotFrame{}
	}
}

func (h *harness) expect(event string, v any) {
	h.t.Helper()
	f := h.next()
	require.Equal(h.t, event, f.Event, "data: %s", f.Data)
	if v != nil {
		require.NoError(h.t, json.Unmarshal(f.Data, v))
	}
}

func (h *harness) expectStream(typ string) wire.StreamEvent {
	h.t.Helper()
	var p wire.StreamPayload
	h.expect(wire.EventStream, &p)
	require.Equal(h.t, typ, p.Event.Type)
	return p.Event
}

func (h *harness) startSession(dir string) wire.SessionStarted {
	h.t.Helper()
	h.send(wire.EventStartSession, wire.StartSession{WorkingDirectory: dir})
	var started wire.SessionStarted
	h.expect(wire.EventSessionStarted, &started)
	return started
}

func TestGateway_Ping(t *testing.T) {
	h := newHarness(t, Options{})
	h.send(wire.EventPing, nil)
	h.expect(wire.EventPong, nil)
}

func TestGateway_StartSession(t *testing.T) {
	h := newHarness(t, Options{})
	dir := t.TempDir()
	started := h.startSession(dir)
	assert.Equal(t, "ready", started.Status)
	assert.Equal(t, dir, started.WorkingDirectory)
	assert.Equal(t, instructions.DefaultName, started.InstructionName)
	assert.Equal(t, "codex-mini", started.Model)
	assert.NotEmpty(t, started.SessionID)
	assert.Equal(t, 1, h.sessions.Len())
	assert.Len(t, h.tracker.Events(), 1)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.cfgs, 1)
	assert.Equal(t, dir, h.cfgs[0].WorkingDir)
	assert.NotEmpty(t, h.cfgs[0].Instructions)
}

func TestGateway_StartSessionInvalidDirectory(t *testing.T) {
	h := newHarness(t, Options{})
	missing := filepath.Join(t.TempDir(), "nope")
	h.send(wire.EventStartSession, wire.StartSession{WorkingDirectory: missing})
	var p wire.ErrorPayload
	h.expect(wire.EventSessionError, &p)
	assert.Equal(t, "Directory does not exist: "+missing, p.Error)
	assert.Equal(t, 0, h.sessions.Len())

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	h.send(wire.EventStartSession, wire.StartSession{WorkingDirectory: file})
	h.expect(wire.EventSessionError, &p)
	assert.Equal(t, "Path is not a directory: "+file, p.Error)
	assert.Equal(t, 0, h.sessions.Len())
}

func TestGateway_StartSessionUsesSelectedInstruction(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.store.Save("foo", "be terse")
	require.NoError(t, err)

	h.send(wire.EventStartSession, wire.StartSession{WorkingDirectory: t.TempDir(), InstructionName: "foo", Model: "o3"})
	var started wire.SessionStarted
	h.expect(wire.EventSessionStarted, &started)
	assert.Equal(t, "foo", started.InstructionName)
	assert.Equal(t, "o3", started.Model)
	assert.Equal(t, "foo", h.store.Selected())

	h.mu.Lock()
	assert.Equal(t, "be terse", h.cfgs[0].Instructions)
	h.mu.Unlock()

	// 不存在的指令保留当前选择
	h.send(wire.EventStartSession, wire.StartSession{WorkingDirectory: t.TempDir(), InstructionName: "ghost"})
	h.expect(wire.EventSessionStarted, &started)
	assert.Equal(t, "foo", started.InstructionName)
	assert.Equal(t, 1, h.sessions.Len())
}

func TestGateway_ToolApprovalFlow(t *testing.T) {
	h := newHarness(t, Options{})
	h.agent.streams = [][]agent.Event{
		{
			{Kind: agent.KindToolCallStart, ToolCallID: "call_1", ToolName: "shell"},
			{Kind: agent.KindToolCallDelta, ToolCallID: "call_1", ArgumentsDelta: `{"command":["ls"]}`},
			{Kind: agent.KindToolCallEnd, ToolCallID: "call_1", ToolName: "shell", Arguments: `{"command":["ls"]}`},
		},
		{
			{Kind: agent.KindTextDelta, Content: "done"},
			{Kind: agent.KindDone},
		},
	}
	h.agent.pendings = [][]agent.ToolCall{{{ID: "call_1", Name: "shell", Arguments: `{"command":["ls"]}`}}}
	dir := t.TempDir()
	h.startSession(dir)

	h.send(wire.EventSendMessage, wire.SendMessage{Message: "list files"})
	start := h.expectStream(wire.TypeToolCallStart)
	assert.Equal(t, "call_1", start.ToolCallID)
	assert.Equal(t, "shell", start.ToolFunctionName)
	h.expectStream(wire.TypeToolCallDelta)
	end := h.expectStream(wire.TypeToolCallEnd)
	assert.Equal(t, `{"command":["ls"]}`, end.ToolArgumentsComplete)

	h.send(wire.EventExecuteTool, wire.ExecuteTool{ToolCallID: "call_1", Action: wire.ActionApprove})
	var res wire.ToolResult
	h.expect(wire.EventToolResult, &res)
	assert.Equal(t, "call_1", res.ToolCallID)
	assert.Equal(t, "ran shell", res.Result)
	assert.Equal(t, "done", h.expectStream(wire.TypeTextDelta).Content)
	h.expectStream(wire.TypeResponseEnd)

	h.agent.mu.Lock()
	require.Len(t, h.agent.opts, 1)
	assert.True(t, h.agent.opts[0].Sandboxed)
	assert.Equal(t, []string{dir}, h.agent.opts[0].AllowedWritePaths)
	require.Len(t, h.agent.results, 1)
	h.agent.mu.Unlock()

	// 重复审批为空操作
	h.send(wire.EventExecuteTool, wire.ExecuteTool{ToolCallID: "call_1", Action: wire.ActionApprove})
	h.send(wire.EventPing, nil)
	h.expect(wire.EventPong, nil)
}

func TestGateway_UnknownToolCall(t *testing.T) {
	h := newHarness(t, Options{})
	h.startSession(t.TempDir())
	h.send(wire.EventExecuteTool, wire.ExecuteTool{ToolCallID: "call_x", Action: wire.ActionReject})
	var p wire.ErrorPayload
	h.expect(wire.EventError, &p)
	assert.Equal(t, "unknown tool call: call_x", p.Error)
}

func TestGateway_NoActiveSession(t *testing.T) {
	h := newHarness(t, Options{})
	var p wire.ErrorPayload
	h.send(wire.EventSendMessage, wire.SendMessage{Message: "hi"})
	h.expect(wire.EventError, &p)
	assert.Equal(t, "No active session", p.Error)

	h.send(wire.EventExecuteTool, wire.ExecuteTool{ToolCallID: "c", Action: wire.ActionApprove})
	h.expect(wire.EventError, &p)
	assert.Equal(t, "No active session", p.Error)
}

func TestGateway_StopSession(t *testing.T) {
	h := newHarness(t, Options{})
	h.startSession(t.TempDir())
	require.Equal(t, 1, h.sessions.Len())
	h.send(wire.EventStopSession, nil)
	h.expect(wire.EventSessionStopped, nil)
	assert.Equal(t, 0, h.sessions.Len())
}

func TestGateway_TestMessage(t *testing.T) {
	h := newHarness(t, Options{})
	h.send(wire.EventTestMessage, wire.SendMessage{Message: "ping"})
	var got string
	for _, want := range []string{"Hello ", "from ", "Codex! ", "You said: ping"} {
		e := h.expectStream(wire.TypeTextDelta)
		assert.Equal(t, want, e.Content)
		got += e.Content
	}
	h.expectStream(wire.TypeResponseEnd)
	assert.Equal(t, "Hello from Codex! You said: ping", got)
}

func TestGateway_InvalidAndUnknownFrames(t *testing.T) {
	h := newHarness(t, Options{})
	var p wire.ErrorPayload
	h.conn.in <- []byte("not json")
	h.expect(wire.EventError, &p)
	assert.Equal(t, "Invalid frame", p.Error)

	h.send("launch-rockets", nil)
	h.expect(wire.EventError, &p)
	assert.Equal(t, "Unknown event: launch-rockets", p.Error)
}

func TestGateway_RateLimit(t *testing.T) {
	h := newHarness(t, Options{MessagesPerSec: 1})
	h.send(wire.EventPing, nil)
	h.send(wire.EventPing, nil)
	events := map[string]int{}
	for i := 0; i < 2; i++ {
		events[h.next().Event]++
	}
	assert.Equal(t, 1, events[wire.EventPong])
	assert.Equal(t, 1, events[wire.EventError])
}

func TestGateway_DisconnectRemovesSession(t *testing.T) {
	h := newHarness(t, Options{})
	h.startSession(t.TempDir())
	require.Equal(t, 1, h.g.Clients())
	close(h.conn.in)
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 0, h.sessions.Len())
	assert.Equal(t, 0, h.g.Clients())
}

func TestGateway_BroadcastAndClose(t *testing.T) {
	h := newHarness(t, Options{})
	h.send(wire.EventPing, nil)
	h.expect(wire.EventPong, nil)

	h.g.NotifyInstructionsUpdated("foo")
	var p map[string]string
	h.expect(wire.EventInstructionsUpdated, &p)
	assert.Equal(t, "foo", p["filename"])

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.g.Close(ctx))
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}
