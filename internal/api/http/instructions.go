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
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/iddy-ani/codex/internal/instructions"
	"github.com/iddy-ani/codex/pkg/errors"
)

type saveInstructionRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type selectInstructionRequest struct {
	Filename string `json:"filename"`
}

func (h *Handler) instructionsChanged(name string) {
	if h.onInstructionsChanged != nil {
		h.onInstructionsChanged(name)
	}
}

// ListInstructions 指令列表与当前选中项
// GET /api/codex/instructions
func (h *Handler) ListInstructions(ctx context.Context, c *app.RequestContext) {
	list, err := h.store.List()
	if err != nil {
		fail(c, consts.StatusInternalServerError, err.Error())
		return
	}
	success(c, utils.H{"instructions": list, "selected": h.store.Selected()})
}

// SaveInstruction 新建或覆盖指令
// POST /api/codex/instructions
func (h *Handler) SaveInstruction(ctx context.Context, c *app.RequestContext) {
	var req saveInstructionRequest
	if err := bindOptional(c, &req); err != nil {
		fail(c, consts.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Filename) == "" {
		fail(c, consts.StatusBadRequest, "Filename is required")
		return
	}
	id, err := h.store.Save(req.Filename, req.Content)
	if err != nil {
		fail(c, consts.StatusInternalServerError, err.Error())
		return
	}
	h.instructionsChanged(id)
	success(c, utils.H{"message": fmt.Sprintf("Instruction '%s' saved successfully", id), "filename": id})
}

// GetInstruction 读取单个指令
// GET /api/codex/instructions/:filename
func (h *Handler) GetInstruction(ctx context.Context, c *app.RequestContext) {
	name := c.Param("filename")
	content, err := h.store.Get(name)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			fail(c, consts.StatusNotFound, "Instruction file not found")
			return
		}
		fail(c, consts.StatusInternalServerError, err.Error())
		return
	}
	success(c, utils.H{"filename": name, "content": content})
}

// DeleteInstruction 删除指令；default 不可删除
// DELETE /api/codex/instructions/:filename
func (h *Handler) DeleteInstruction(ctx context.Context, c *app.RequestContext) {
	name := c.Param("filename")
	if err := h.store.Delete(name); err != nil {
		switch {
		case errors.Is(err, errors.ErrProtected):
			fail(c, consts.StatusBadRequest, "Cannot delete default instructions")
		case errors.Is(err, errors.ErrNotFound):
			fail(c, consts.StatusNotFound, "File not found")
		default:
			fail(c, consts.StatusInternalServerError, err.Error())
		}
		return
	}
	h.instructionsChanged(name)
	success(c, utils.H{"message": fmt.Sprintf("Instruction '%s' deleted successfully", name)})
}

// SelectInstruction 设置当前指令
// POST /api/codex/instructions/select
func (h *Handler) SelectInstruction(ctx context.Context, c *app.RequestContext) {
	var req selectInstructionRequest
	if err := bindOptional(c, &req); err != nil {
		fail(c, consts.StatusBadRequest, "invalid request")
		return
	}
	name := strings.TrimSpace(req.Filename)
	if name == "" {
		fail(c, consts.StatusBadRequest, "Filename is required")
		return
	}
	if err := h.store.Select(name); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			fail(c, consts.StatusNotFound, "Instruction file not found")
			return
		}
		fail(c, consts.StatusInternalServerError, "Failed to set selected instruction")
		return
	}
	h.instructionsChanged(name)
	success(c, utils.H{"message": fmt.Sprintf("Selected instruction: %s", name)})
}

// CurrentInstruction 当前生效的指令内容
// GET /api/codex/instructions/current
func (h *Handler) CurrentInstruction(ctx context.Context, c *app.RequestContext) {
	selected := h.store.Selected()
	content, err := h.store.Get(selected)
	if err != nil {
		selected = instructions.DefaultName
		content, _ = h.store.Get(selected)
	}
	success(c, utils.H{"selected": selected, "content": content})
}

// OpenInstructionsFolder 在资源管理器中打开指令目录
// POST /api/codex/instructions/open-folder
func (h *Handler) OpenInstructionsFolder(ctx context.Context, c *app.RequestContext) {
	dir := h.store.Dir()
	if h.goos != "windows" {
		fail(c, consts.StatusBadRequest, "This feature is only available on Windows")
		return
	}
	if err := h.openFolder(dir); err != nil {
		fail(c, consts.StatusInternalServerError, fmt.Sprintf("Failed to open folder: %v", err))
		return
	}
	success(c, utils.H{"message": fmt.Sprintf("Opened instructions folder: %s", dir)})
}
