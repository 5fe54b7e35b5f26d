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
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/iddy-ani/codex/pkg/config"
	"github.com/iddy-ani/codex/pkg/errors"
)

// OpenAIFactory 为每个会话创建 OpenAI / Azure OpenAI ChatModel 并包装为 EinoAgent
type OpenAIFactory struct {
	cfg    config.AgentConfig
	apiKey string
}

// NewOpenAIFactory apiKey 为已解析的明文密钥
func NewOpenAIFactory(cfg config.AgentConfig, apiKey string) *OpenAIFactory {
	return &OpenAIFactory{cfg: cfg, apiKey: apiKey}
}

// New 实现 Factory
func (f *OpenAIFactory) New(ctx context.Context, sc SessionConfig) (Agent, error) {
	if f.apiKey == "" {
		return nil, errors.Invalidf("agent api_key not configured")
	}
	modelName := sc.Model
	if modelName == "" {
		modelName = f.cfg.Model
	}
	timeout, err := time.ParseDuration(f.cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 120 * time.Second
	}
	mc := &openai.ChatModelConfig{
		APIKey:  f.apiKey,
		Model:   modelName,
		BaseURL: f.cfg.BaseURL,
		Timeout: timeout,
	}
	if f.cfg.Provider == "azure" {
		if f.cfg.BaseURL == "" {
			return nil, errors.Invalidf("azure provider requires agent.base_url")
		}
		mc.ByAzure = true
		mc.APIVersion = f.cfg.APIVersion
	}
	if f.cfg.Temperature > 0 {
		t := f.cfg.Temperature
		mc.Temperature = &t
	}
	chat, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, errors.Wrap(err, "创建 OpenAI ChatModel failed")
	}
	return NewEinoAgent(ctx, chat, sc)
}
