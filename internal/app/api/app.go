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

package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/devops"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"github.com/iddy-ani/codex/internal/agent"
	apigrpc "github.com/iddy-ani/codex/internal/api/grpc"
	"github.com/iddy-ani/codex/internal/api/http"
	"github.com/iddy-ani/codex/internal/api/http/middleware"
	"github.com/iddy-ani/codex/internal/api/ws"
	"github.com/iddy-ani/codex/internal/app"
	"github.com/iddy-ani/codex/internal/model"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App 桥接服务：HTTP 路由、实时通道、可选 gRPC 健康检查
type App struct {
	config       *app.Bootstrap
	handler      *http.Handler
	router       *http.Router
	gateway      *ws.Gateway
	hertz        *server.Hertz
	grpcServer   *apigrpc.Run
	otelProvider otelProviderShutdown

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	if bootstrap == nil || bootstrap.Config == nil {
		return nil, fmt.Errorf("bootstrap is not initialized")
	}
	cfg := bootstrap.Config
	ctx, cancel := context.WithCancel(context.Background())

	handler := http.NewHandler(bootstrap.Sessions, bootstrap.Instructions, bootstrap.Logger)
	handler.SetAgentConfig(cfg.Agent)
	if cfg.Agent.ProbeModelsOnHealth {
		handler.SetProber(model.NewProber(cfg.Agent.Provider, cfg.Agent.BaseURL, bootstrap.APIKey, cfg.Agent.APIVersion))
	}

	mw := middleware.NewMiddleware(cfg.API.CORS.AllowOrigins, bootstrap.Logger)
	wsCfg := cfg.API.WebSocket
	opts := ws.Options{
		SendBuffer:     wsCfg.SendBuffer,
		WriteTimeout:   parseDuration(wsCfg.WriteTimeout, 10*time.Second),
		MessagesPerSec: wsCfg.MessagesPerSec,
	}
	if wsCfg.CheckOrigin {
		opts.CheckOrigin = mw.OriginAllowed
	}
	gateway := ws.NewGateway(ctx, ws.Deps{
		Sessions: bootstrap.Sessions,
		Store:    bootstrap.Instructions,
		Factory:  agent.NewOpenAIFactory(cfg.Agent, bootstrap.APIKey),
		Base:     agent.FromConfig(cfg.Agent),
		Tracker:  bootstrap.Tracker,
		Logger:   bootstrap.Logger,
	}, opts)
	handler.OnInstructionsChanged(gateway.NotifyInstructionsUpdated)

	router := http.NewRouter(handler, mw)
	router.SetRealtime(wsCfg.Path, gateway.Handle)
	if cfg.API.Middleware.RateLimit {
		router.SetRateLimit(cfg.API.Middleware.RateLimitRPS)
	}
	if cfg.API.Middleware.Auth && cfg.API.Middleware.JWTKey != "" {
		timeout := parseDuration(cfg.API.Middleware.JWTTimeout, time.Hour)
		maxRefresh := parseDuration(cfg.API.Middleware.JWTMaxRefresh, time.Hour)
		jwtAuth, err := middleware.NewJWTAuth([]byte(cfg.API.Middleware.JWTKey), timeout, maxRefresh, cfg.API.Middleware.AccessKey)
		if err != nil {
			bootstrap.Logger.Warn("JWT 初始化失败，将跳过认证", "error", err)
		} else {
			router.SetJWT(jwtAuth)
			bootstrap.Logger.Info("JWT 认证已启用")
		}
	}

	appObj := &App{
		config:  bootstrap,
		handler: handler,
		router:  router,
		gateway: gateway,
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.API.Grpc.Enable && cfg.API.Grpc.Port > 0 {
		gs, err := apigrpc.Start(cfg.API.Grpc.Port)
		if err != nil {
			bootstrap.Logger.Warn("gRPC 服务启动失败", "error", err)
		} else {
			appObj.grpcServer = gs
			bootstrap.Logger.Info("gRPC 服务已启动", "port", cfg.API.Grpc.Port)
		}
	}
	return appObj, nil
}

// Gateway 实时通道
func (a *App) Gateway() *ws.Gateway { return a.gateway }

// Run 启动 HTTP 服务，addr 如 "0.0.0.0:5000"
func (a *App) Run(addr string) error {
	cfg := a.config.Config
	a.config.Logger.Info("API 服务启动", "addr", addr)

	// Hertz 日志与 bootstrap 共用输出和级别
	levelVar := &slog.LevelVar{}
	levelVar.Set(a.config.Logger.Level())
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(a.config.Logger.Output()),
		hertzslog.WithLevel(levelVar),
	))

	if cfg.Monitoring.Tracing.Enable {
		serviceName := cfg.Monitoring.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "codex-api"
		}
		exportEndpoint := cfg.Monitoring.Tracing.ExportEndpoint
		if exportEndpoint == "" {
			exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if exportEndpoint != "" {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if cfg.Monitoring.Tracing.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
			tracerOpt, tcfg := hertztracing.NewServerTracer()
			a.hertz = a.router.Build(addr, tracerOpt)
			a.hertz.Use(hertztracing.ServerMiddleware(tcfg))
			a.config.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
		}
	}
	if a.hertz == nil {
		a.hertz = a.router.Build(addr)
	}

	if cfg.Monitoring.EinoDevops.Enable {
		if err := a.startDevops(); err != nil {
			a.config.Logger.Warn("Eino Dev 初始化失败", "error", err)
		}
	}

	if cfg.Instructions.Watch {
		go func() {
			err := a.config.Instructions.Watch(a.ctx, a.gateway.NotifyInstructionsUpdated)
			if err != nil && a.ctx.Err() == nil {
				a.config.Logger.Warn("指令目录监听退出", "error", err)
			}
		}()
	}
	return a.hertz.Run()
}

// startDevops 初始化 Eino Dev 并编译会话提示图，必须先 Init 后 Compile
func (a *App) startDevops() error {
	if err := devops.Init(a.ctx); err != nil {
		return err
	}
	if _, err := agent.CompilePromptGraph(a.ctx, agent.FromConfig(a.config.Config.Agent)); err != nil {
		return err
	}
	a.config.Logger.Info("Eino Dev 已启用", "graph", agent.PromptGraphName)
	return nil
}

// Shutdown 优雅关闭：先通知客户端并结束全部会话，再停止监听
func (a *App) Shutdown(ctx context.Context) error {
	a.cancel()
	var errs []string
	if err := a.gateway.Close(ctx); err != nil {
		errs = append(errs, err.Error())
	}
	if err := a.config.Sessions.StopAll(ctx); err != nil {
		errs = append(errs, err.Error())
	}
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := a.config.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %s", strings.Join(errs, "; "))
	}
	return nil
}

// parseDuration 解析时长字符串，无效或空时返回 defaultVal
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
