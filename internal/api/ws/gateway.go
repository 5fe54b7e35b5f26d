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

// Package ws 实时通道：每个 WebSocket 连接对应一个客户端与至多一个会话
package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/websocket"

	"github.com/iddy-ani/codex/internal/agent"
	"github.com/iddy-ani/codex/internal/instructions"
	"github.com/iddy-ani/codex/internal/runtime/session"
	"github.com/iddy-ani/codex/internal/usage"
	"github.com/iddy-ani/codex/internal/wire"
	"github.com/iddy-ani/codex/internal/workspace"
	"github.com/iddy-ani/codex/pkg/errors"
	"github.com/iddy-ani/codex/pkg/log"
)

const (
	pongWait       = 60 * time.Second
	maxMessageSize = 1 << 20
)

// Options 网关参数
type Options struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	MessagesPerSec float64
	// CheckOrigin 为 nil 时接受任意来源
	CheckOrigin func(origin string) bool
}

// Deps 网关依赖
type Deps struct {
	Sessions *session.Manager
	Store    *instructions.Store
	Factory  agent.Factory
	Base     agent.SessionConfig
	Tracker  usage.Tracker
	Logger   *log.Logger
}

// Gateway 实时通道网关
type Gateway struct {
	ctx      context.Context
	deps     Deps
	opts     Options
	upgrader websocket.HertzUpgrader

	mu      sync.RWMutex
	clients map[string]*Client
	wg      sync.WaitGroup

	// testDelay test-message 事件之间的间隔
	testDelay time.Duration
}

// NewGateway 创建网关；ctx 为所有会话的父 context，随进程关闭取消
func NewGateway(ctx context.Context, deps Deps, opts Options) *Gateway {
	if deps.Logger == nil {
		deps.Logger = log.Nop()
	}
	if deps.Tracker == nil {
		deps.Tracker = usage.Nop{}
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	g := &Gateway{
		ctx:       ctx,
		deps:      deps,
		opts:      opts,
		clients:   make(map[string]*Client),
		testDelay: 100 * time.Millisecond,
	}
	g.upgrader = websocket.HertzUpgrader{
		CheckOrigin: func(c *app.RequestContext) bool {
			if g.opts.CheckOrigin == nil {
				return true
			}
			return g.opts.CheckOrigin(string(c.GetHeader("Origin")))
		},
	}
	return g
}

// Handle 升级为 WebSocket 并服务该连接，直到断开
func (g *Gateway) Handle(ctx context.Context, c *app.RequestContext) {
	err := g.upgrader.Upgrade(c, func(conn *websocket.Conn) {
		g.Serve(conn)
	})
	if err != nil {
		g.deps.Logger.Warn("websocket upgrade failed", "error", err)
		if c.Response.StatusCode() < consts.StatusBadRequest {
			c.AbortWithStatus(consts.StatusBadRequest)
		}
	}
}

// Serve 在已建立的连接上运行读写循环；返回时连接已关闭、会话已移除
func (g *Gateway) Serve(conn Conn) {
	id := uuid.New().String()
	cl := newClient(id, g.opts.SendBuffer, g.opts.MessagesPerSec, g.deps.Logger.With("session_id", id))
	g.connect(cl)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		cl.writePump(conn, g.opts.WriteTimeout, pongWait*9/10)
	}()

	g.readPump(conn, cl)
	cl.close()
	<-writerDone
	g.disconnect(cl)
}

func (g *Gateway) connect(cl *Client) {
	g.mu.Lock()
	g.clients[cl.id] = cl
	g.mu.Unlock()
	cl.logger.Info("client connected")
}

func (g *Gateway) disconnect(cl *Client) {
	g.mu.Lock()
	delete(g.clients, cl.id)
	g.mu.Unlock()
	g.deps.Sessions.Remove(cl.id)
	cl.logger.Info("client disconnected")
}

type inFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (g *Gateway) readPump(conn Conn, cl *Client) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cl.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var f inFrame
		if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
			cl.Publish(wire.EventError, wire.ErrorPayload{Error: "Invalid frame"})
			continue
		}
		if !cl.allow() {
			cl.Publish(wire.EventError, wire.ErrorPayload{Error: "Rate limit exceeded"})
			continue
		}
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.dispatch(cl, f)
		}()
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (g *Gateway) dispatch(cl *Client, f inFrame) {
	defer func() {
		if r := recover(); r != nil {
			cl.logger.Error("handler panic", "event", f.Event, "panic", r)
			cl.Publish(wire.EventError, wire.ErrorPayload{Error: "Internal error"})
		}
	}()

	switch f.Event {
	case wire.EventPing:
		cl.Publish(wire.EventPong, nil)
	case wire.EventStartSession:
		var req wire.StartSession
		if err := decode(f.Data, &req); err != nil {
			cl.Publish(wire.EventSessionError, wire.ErrorPayload{Error: "Invalid start-session payload"})
			return
		}
		g.startSession(cl, req)
	case wire.EventSendMessage:
		var req wire.SendMessage
		if err := decode(f.Data, &req); err != nil {
			cl.Publish(wire.EventError, wire.ErrorPayload{Error: "Invalid send-message payload"})
			return
		}
		g.sendMessage(cl, req)
	case wire.EventExecuteTool:
		var req wire.ExecuteTool
		if err := decode(f.Data, &req); err != nil {
			cl.Publish(wire.EventError, wire.ErrorPayload{Error: "Invalid execute-tool payload"})
			return
		}
		g.executeTool(cl, req)
	case wire.EventStopSession:
		g.deps.Sessions.Remove(cl.id)
		cl.Publish(wire.EventSessionStopped, map[string]any{})
	case wire.EventTestMessage:
		var req wire.SendMessage
		_ = decode(f.Data, &req)
		g.testMessage(cl, req.Message)
	default:
		cl.Publish(wire.EventError, wire.ErrorPayload{Error: "Unknown event: " + f.Event})
	}
}

func (g *Gateway) startSession(cl *Client, req wire.StartSession) {
	dir, err := workspace.ResolveWorkingDir(req.WorkingDirectory)
	if err != nil {
		cl.Publish(wire.EventSessionError, wire.ErrorPayload{Error: err.Error()})
		return
	}

	store := g.deps.Store
	if name := strings.TrimSpace(req.InstructionName); name != "" {
		if store.Exists(name) {
			if err := store.Select(name); err != nil {
				cl.logger.Warn("select instruction failed", "instruction", name, "error", err)
			}
		} else {
			cl.logger.Warn("instruction not found, keeping current selection", "instruction", name)
		}
	}
	selected := store.Selected()

	cfg, err := agent.LoadSessionConfig(g.deps.Base, dir)
	if err != nil {
		cl.Publish(wire.EventSessionError, wire.ErrorPayload{Error: err.Error()})
		return
	}
	if content, err := store.Get(selected); err == nil && content != "" {
		cfg.Instructions = content
	}
	if m := strings.TrimSpace(req.Model); m != "" {
		cfg.Model = m
	}

	ag, err := g.deps.Factory.New(g.ctx, cfg)
	if err != nil {
		cl.logger.Error("create agent failed", "error", err)
		cl.Publish(wire.EventSessionError, wire.ErrorPayload{Error: "Failed to create agent: " + err.Error()})
		return
	}
	g.deps.Sessions.Create(g.ctx, session.Options{
		ID:              cl.id,
		WorkingDir:      dir,
		InstructionName: selected,
		Model:           cfg.Model,
		Agent:           ag,
		Publisher:       cl,
		Logger:          cl.logger,
	})
	select {
	case <-cl.Closed():
		// 连接已在创建期间断开
		g.deps.Sessions.Remove(cl.id)
		return
	default:
	}
	if agent.Unconfined(cfg.Sandbox) {
		cl.logger.Warn("bwrap not found, shell commands run without filesystem confinement", "working_directory", dir)
	}
	cl.logger.Info("session started", "working_directory", dir, "instruction", selected, "model", cfg.Model)
	cl.Publish(wire.EventSessionStarted, wire.SessionStarted{
		SessionID:        cl.id,
		Status:           "ready",
		WorkingDirectory: dir,
		InstructionName:  selected,
		Model:            cfg.Model,
	})

	if _, err := g.deps.Tracker.Track(g.ctx, usage.CurrentUser(), usage.MethodWebSession); err != nil {
		cl.logger.Warn("track usage failed", "error", err)
	}
}

func (g *Gateway) sendMessage(cl *Client, req wire.SendMessage) {
	sess, ok := g.deps.Sessions.Get(cl.id)
	if !ok {
		cl.Publish(wire.EventError, wire.ErrorPayload{Error: "No active session"})
		return
	}
	if err := sess.SendMessage(req.Message); err != nil {
		cl.Publish(wire.EventError, wire.ErrorPayload{Error: userMessage(err)})
	}
}

func (g *Gateway) executeTool(cl *Client, req wire.ExecuteTool) {
	sess, ok := g.deps.Sessions.Get(cl.id)
	if !ok {
		cl.Publish(wire.EventError, wire.ErrorPayload{Error: "No active session"})
		return
	}
	if req.ToolCallID == "" {
		cl.Publish(wire.EventError, wire.ErrorPayload{Error: "tool_call_id is required"})
		return
	}
	if err := sess.ResolveToolCall(g.ctx, req.ToolCallID, req.Action); err != nil {
		cl.logger.Warn("resolve tool call failed", "tool_call_id", req.ToolCallID, "error", err)
		cl.Publish(wire.EventError, wire.ErrorPayload{Error: userMessage(err)})
	}
}

// testMessage 不依赖会话的固定回显流，用于前端联调
func (g *Gateway) testMessage(cl *Client, message string) {
	events := []wire.StreamEvent{
		{Type: wire.TypeTextDelta, Content: "Hello "},
		{Type: wire.TypeTextDelta, Content: "from "},
		{Type: wire.TypeTextDelta, Content: "Codex! "},
		{Type: wire.TypeTextDelta, Content: "You said: " + message},
		{Type: wire.TypeResponseEnd},
	}
	for i, e := range events {
		if i > 0 && g.testDelay > 0 {
			select {
			case <-time.After(g.testDelay):
			case <-cl.Closed():
				return
			}
		}
		cl.Publish(wire.EventStream, wire.StreamPayload{SessionID: cl.id, Event: e})
	}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, errors.ErrInactive):
		return "Session is not active"
	case errors.Is(err, errors.ErrBusy):
		return "Session is busy"
	case errors.Is(err, errors.ErrInvalidArg):
		return strings.TrimSuffix(err.Error(), ": "+errors.ErrInvalidArg.Error())
	default:
		return err.Error()
	}
}

// Broadcast 向所有连接发送一帧
func (g *Gateway) Broadcast(event string, data any) {
	g.mu.RLock()
	clients := make([]*Client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.RUnlock()
	for _, c := range clients {
		go c.Publish(event, data)
	}
}

// NotifyInstructionsUpdated 广播 instructions-updated
func (g *Gateway) NotifyInstructionsUpdated(name string) {
	g.Broadcast(wire.EventInstructionsUpdated, map[string]string{"filename": name})
}

// Clients 当前连接数
func (g *Gateway) Clients() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Close 关闭所有连接并等待处理 goroutine 退出
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.RLock()
	for _, c := range g.clients {
		c.close()
	}
	g.mu.RUnlock()
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
