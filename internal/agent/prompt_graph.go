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

	"github.com/cloudwego/eino/compose"
)

// PromptGraphName 会话系统提示组装图
const PromptGraphName = "codex_session_prompt"

// PromptRequest 组装系统提示的输入
type PromptRequest struct {
	WorkingDir   string `json:"working_dir"`
	Instructions string `json:"instructions"`
}

// CompilePromptGraph 编译 load_config -> render 两节点的图，按会话启动时的规则组装系统提示；
// 开启 Eino Dev 时可在 IDE 中直接调试
func CompilePromptGraph(ctx context.Context, base SessionConfig) (compose.Runnable[*PromptRequest, string], error) {
	g := compose.NewGraph[*PromptRequest, string]()

	if err := g.AddLambdaNode("load_config", compose.InvokableLambda(func(ctx context.Context, in *PromptRequest) (SessionConfig, error) {
		cfg, err := LoadSessionConfig(base, in.WorkingDir)
		if err != nil {
			return cfg, err
		}
		if in.Instructions != "" {
			cfg.Instructions = in.Instructions
		}
		return cfg, nil
	})); err != nil {
		return nil, err
	}
	if err := g.AddLambdaNode("render", compose.InvokableLambda(func(ctx context.Context, cfg SessionConfig) (string, error) {
		return cfg.SystemPrompt(), nil
	})); err != nil {
		return nil, err
	}
	if err := g.AddEdge(compose.START, "load_config"); err != nil {
		return nil, err
	}
	if err := g.AddEdge("load_config", "render"); err != nil {
		return nil, err
	}
	if err := g.AddEdge("render", compose.END); err != nil {
		return nil, err
	}
	return g.Compile(ctx, compose.WithGraphName(PromptGraphName))
}
