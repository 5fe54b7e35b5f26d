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
	"encoding/json"
	"sync"
	"time"

	"github.com/hertz-contrib/websocket"
	"golang.org/x/time/rate"

	"github.com/iddy-ani/codex/internal/wire"
	"github.com/iddy-ani/codex/pkg/log"
)

// Conn 网关使用的连接能力，*websocket.Conn 满足该接口
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Client 一个实时连接；写入经由 send 通道串行化
type Client struct {
	id      string
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	logger  *log.Logger
}

func newClient(id string, buffer int, perSec float64, logger *log.Logger) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	c := &Client{
		id:     id,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	if perSec > 0 {
		burst := int(perSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
	return c
}

// ID 连接 id，同时作为会话 id
func (c *Client) ID() string { return c.id }

// Publish 发送一帧；缓冲满时阻塞直到写出或连接关闭
func (c *Client) Publish(event string, data any) {
	b, err := json.Marshal(wire.Frame{Event: event, Data: data})
	if err != nil {
		c.logger.Error("marshal frame failed", "event", event, "error", err)
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- b:
	case <-c.done:
	}
}

func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Closed 连接关闭后关闭的通道
func (c *Client) Closed() <-chan struct{} { return c.done }

func (c *Client) writePump(conn Conn, writeTimeout, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("write frame failed", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
