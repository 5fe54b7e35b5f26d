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

package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Prober 查询提供方可用模型（OpenAI 兼容 GET /models）
type Prober struct {
	client     *resty.Client
	baseURL    string
	apiKey     string
	apiVersion string
	azure      bool
}

// NewProber 创建 Prober；provider 为 azure 时使用 api-key 头与 api-version 参数
func NewProber(provider, baseURL, apiKey, apiVersion string) *Prober {
	client := resty.New()
	client.SetTimeout(10 * time.Second)
	client.SetRetryCount(1)
	return &Prober{
		client:     client,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		apiVersion: apiVersion,
		azure:      provider == "azure",
	}
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Probe 返回提供方报告的模型 ID
func (p *Prober) Probe(ctx context.Context) ([]string, error) {
	if p.baseURL == "" {
		return nil, fmt.Errorf("model probe: base_url is empty")
	}
	var out modelList
	req := p.client.R().SetContext(ctx).SetResult(&out)
	url := p.baseURL + "/models"
	if p.azure {
		url = p.baseURL + "/openai/models"
		req.SetHeader("api-key", p.apiKey).SetQueryParam("api-version", p.apiVersion)
	} else {
		req.SetAuthToken(p.apiKey)
	}
	resp, err := req.Get(url)
	if err != nil {
		return nil, fmt.Errorf("调用模型列表失败: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("model probe: %s", resp.Status())
	}
	ids := make([]string, 0, len(out.Data))
	for _, d := range out.Data {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// Available 提供方是否提供给定模型
func (p *Prober) Available(ctx context.Context, id string) (bool, error) {
	ids, err := p.Probe(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range ids {
		if m == id {
			return true, nil
		}
	}
	return false, nil
}
