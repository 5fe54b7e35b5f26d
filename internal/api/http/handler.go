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
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/iddy-ani/codex/internal/instructions"
	"github.com/iddy-ani/codex/internal/model"
	"github.com/iddy-ani/codex/internal/runtime/session"
	"github.com/iddy-ani/codex/internal/workspace"
	"github.com/iddy-ani/codex/pkg/config"
	"github.com/iddy-ani/codex/pkg/errors"
	"github.com/iddy-ani/codex/pkg/log"
	"github.com/iddy-ani/codex/pkg/metrics"
)

// Handler HTTP 处理器
type Handler struct {
	sessions *session.Manager
	store    *instructions.Store
	agentCfg config.AgentConfig
	prober   *model.Prober
	logger   *log.Logger

	// openFolder 在文件管理器中打开目录，仅 Windows 可用
	openFolder func(path string) error
	goos       string

	onInstructionsChanged func(name string)
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(sessions *session.Manager, store *instructions.Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Handler{
		sessions: sessions,
		store:    store,
		logger:   logger,
		openFolder: func(path string) error {
			return exec.Command("explorer", path).Start()
		},
		goos: runtime.GOOS,
	}
}

// SetAgentConfig 设置模型相关配置（/config 与健康探测使用）
func (h *Handler) SetAgentConfig(cfg config.AgentConfig) { h.agentCfg = cfg }

// OnInstructionsChanged 指令经 HTTP 修改后的回调
func (h *Handler) OnInstructionsChanged(fn func(name string)) { h.onInstructionsChanged = fn }

// SetProber 设置模型可用性探测
func (h *Handler) SetProber(p *model.Prober) { h.prober = p }

func success(c *app.RequestContext, body utils.H) {
	body["status"] = "success"
	c.JSON(consts.StatusOK, body)
}

func fail(c *app.RequestContext, code int, message string) {
	c.JSON(code, utils.H{"status": "error", "message": message})
}

// bindOptional 允许空请求体
func bindOptional(c *app.RequestContext, v any) error {
	if len(c.Request.Body()) == 0 {
		return nil
	}
	return c.BindJSON(v)
}

// HealthCheck 健康检查
// GET /api/codex/health
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	body := utils.H{
		"message":         "Codex functionality available",
		"active_sessions": h.activeSessions(),
	}
	if h.prober != nil && h.agentCfg.ProbeModelsOnHealth {
		ok, err := h.prober.Available(ctx, h.agentCfg.Model)
		if err != nil {
			h.logger.Warn("model probe failed", "model", h.agentCfg.Model, "error", err)
			fail(c, consts.StatusInternalServerError, fmt.Sprintf("Codex functionality unavailable: %v", err))
			return
		}
		body["model_available"] = ok
	}
	success(c, body)
}

func (h *Handler) activeSessions() int {
	if h.sessions == nil {
		return 0
	}
	return h.sessions.Len()
}

// GetConfig 可选模型与当前指令
// GET /api/codex/config
func (h *Handler) GetConfig(ctx context.Context, c *app.RequestContext) {
	list, err := h.store.List()
	if err != nil {
		fail(c, consts.StatusInternalServerError, err.Error())
		return
	}
	defaultModel := h.agentCfg.Model
	if defaultModel == "" {
		defaultModel = model.DefaultModel
	}
	maxTokens := h.agentCfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = model.DefaultMaxTokens
	}
	success(c, utils.H{
		"models":                 model.IDs(),
		"model_descriptions":     model.Descriptions(),
		"default_model":          defaultModel,
		"max_tokens":             maxTokens,
		"current_instruction":    h.store.Selected(),
		"instructions_available": len(list) > 0,
		"instructions_folder":    h.store.Dir(),
	})
}

// GetCurrentDirectory 进程当前目录
// GET /api/codex/get-current-directory
func (h *Handler) GetCurrentDirectory(ctx context.Context, c *app.RequestContext) {
	dir, err := os.Getwd()
	if err != nil {
		fail(c, consts.StatusInternalServerError, err.Error())
		return
	}
	success(c, utils.H{"current_directory": dir})
}

type browseRequest struct {
	Action      string `json:"action"`
	CurrentPath string `json:"current_path"`
}

// BrowseDirectory 目录浏览
// POST /api/codex/browse-directory
func (h *Handler) BrowseDirectory(ctx context.Context, c *app.RequestContext) {
	var req browseRequest
	if err := bindOptional(c, &req); err != nil {
		fail(c, consts.StatusBadRequest, "invalid request")
		return
	}
	l, err := workspace.Browse(req.CurrentPath)
	if err != nil {
		var pe *workspace.PathError
		if errors.As(err, &pe) && pe.Reason == workspace.ReasonPermission {
			fail(c, consts.StatusForbidden, pe.Error())
			return
		}
		fail(c, consts.StatusInternalServerError, err.Error())
		return
	}
	success(c, utils.H{
		"current_path": l.CurrentPath,
		"parent":       l.Parent,
		"items":        l.Items,
		"can_select":   l.CanSelect,
	})
}

type validateRequest struct {
	Path string `json:"path"`
}

// ValidateDirectory 校验目录
// POST /api/codex/validate-directory
func (h *Handler) ValidateDirectory(ctx context.Context, c *app.RequestContext) {
	var req validateRequest
	if err := bindOptional(c, &req); err != nil {
		fail(c, consts.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		fail(c, consts.StatusBadRequest, "No path provided")
		return
	}
	c.JSON(consts.StatusOK, workspace.Validate(req.Path))
}

// ListSessions 活跃会话快照
// GET /api/codex/sessions
func (h *Handler) ListSessions(ctx context.Context, c *app.RequestContext) {
	list := []session.Snapshot{}
	if h.sessions != nil {
		list = append(list, h.sessions.List()...)
	}
	success(c, utils.H{"sessions": list})
}

// Metrics Prometheus 指标
// GET /metrics
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	c.SetContentType("text/plain; version=0.0.4; charset=utf-8")
	if err := metrics.WritePrometheus(c); err != nil {
		h.logger.Error("write metrics failed", "error", err)
		c.SetStatusCode(consts.StatusInternalServerError)
	}
}
