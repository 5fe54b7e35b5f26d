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

package http

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/hertz-contrib/jwt"

	"github.com/iddy-ani/codex/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler      *Handler
	middleware   *middleware.Middleware
	jwt          *jwt.HertzJWTMiddleware
	rateLimitRPS int
	realtimePath string
	realtime     app.HandlerFunc
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// SetJWT 启用 JWT；/api/codex 与实时通道均需 token
func (r *Router) SetJWT(mw *jwt.HertzJWTMiddleware) { r.jwt = mw }

// SetRateLimit 每秒请求数上限
func (r *Router) SetRateLimit(rps int) { r.rateLimitRPS = rps }

// SetRealtime 挂载实时通道
func (r *Router) SetRealtime(path string, h app.HandlerFunc) {
	r.realtimePath = path
	r.realtime = h
}

// Build 创建 Hertz 实例并注册路由
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	opts = append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(opts...)
	r.register(h)
	return h
}

func (r *Router) register(h *server.Hertz) {
	h.Use(r.middleware.AccessLog(), r.middleware.CORS())
	if r.rateLimitRPS > 0 {
		h.Use(r.middleware.RateLimit(r.rateLimitRPS))
	}

	h.GET("/metrics", r.handler.Metrics)

	var auth []app.HandlerFunc
	if r.jwt != nil {
		h.POST("/api/auth/login", r.jwt.LoginHandler)
		h.GET("/api/auth/refresh_token", r.jwt.RefreshHandler)
		auth = append(auth, r.jwt.MiddlewareFunc())
	}

	api := h.Group("/api/codex", auth...)
	{
		api.GET("/health", r.handler.HealthCheck)
		api.GET("/config", r.handler.GetConfig)
		api.GET("/get-current-directory", r.handler.GetCurrentDirectory)
		api.POST("/browse-directory", r.handler.BrowseDirectory)
		api.POST("/validate-directory", r.handler.ValidateDirectory)
		api.GET("/sessions", r.handler.ListSessions)

		api.GET("/instructions", r.handler.ListInstructions)
		api.POST("/instructions", r.handler.SaveInstruction)
		api.GET("/instructions/current", r.handler.CurrentInstruction)
		api.POST("/instructions/select", r.handler.SelectInstruction)
		api.POST("/instructions/open-folder", r.handler.OpenInstructionsFolder)
		api.GET("/instructions/:filename", r.handler.GetInstruction)
		api.DELETE("/instructions/:filename", r.handler.DeleteInstruction)
	}

	if r.realtime != nil {
		path := r.realtimePath
		if path == "" {
			path = "/ws"
		}
		h.GET(path, append(auth, r.realtime)...)
	}

	h.NoRoute(func(ctx context.Context, c *app.RequestContext) {
		fail(c, 404, "Not found")
	})
}
