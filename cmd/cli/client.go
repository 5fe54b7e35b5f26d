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

package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

const apiPrefix = "/api/codex"

func apiBaseURL() string {
	if u := os.Getenv("CODEX_API_URL"); u != "" {
		return u
	}
	return "http://localhost:5000"
}

func newClient(baseURL string) *resty.Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	if token := os.Getenv("CODEX_API_TOKEN"); token != "" {
		c.SetAuthToken(token)
	}
	return c
}

// envelope 服务端统一响应；status=error 时 message 为原因
type envelope map[string]interface{}

func (e envelope) failed() (string, bool) {
	if s, _ := e["status"].(string); s != "error" {
		return "", false
	}
	msg, _ := e["message"].(string)
	return msg, true
}

func call(c *resty.Client, method, path string, body interface{}) (envelope, error) {
	var out envelope
	req := c.R().SetResult(&out).SetError(&out)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, apiPrefix+path)
	if err != nil {
		return nil, err
	}
	if msg, ok := out.failed(); ok {
		return out, fmt.Errorf("%s %s: %s (%d)", method, path, msg, resp.StatusCode())
	}
	if resp.IsError() {
		return out, fmt.Errorf("%s %s: %s", method, path, resp.String())
	}
	return out, nil
}

func getHealth(c *resty.Client) (envelope, error) {
	return call(c, resty.MethodGet, "/health", nil)
}

func getConfig(c *resty.Client) (envelope, error) {
	return call(c, resty.MethodGet, "/config", nil)
}

func listSessions(c *resty.Client) (envelope, error) {
	return call(c, resty.MethodGet, "/sessions", nil)
}

func browse(c *resty.Client, path string) (envelope, error) {
	return call(c, resty.MethodPost, "/browse-directory", map[string]string{"current_path": path})
}

func validate(c *resty.Client, path string) (envelope, error) {
	return call(c, resty.MethodPost, "/validate-directory", map[string]string{"path": path})
}

func listInstructions(c *resty.Client) (envelope, error) {
	return call(c, resty.MethodGet, "/instructions", nil)
}

func getInstruction(c *resty.Client, name string) (envelope, error) {
	return call(c, resty.MethodGet, "/instructions/"+url.PathEscape(name), nil)
}

func saveInstruction(c *resty.Client, name, content string) (envelope, error) {
	return call(c, resty.MethodPost, "/instructions", map[string]string{"filename": name, "content": content})
}

func deleteInstruction(c *resty.Client, name string) (envelope, error) {
	return call(c, resty.MethodDelete, "/instructions/"+url.PathEscape(name), nil)
}

func selectInstruction(c *resty.Client, name string) (envelope, error) {
	return call(c, resty.MethodPost, "/instructions/select", map[string]string{"filename": name})
}

func currentInstruction(c *resty.Client) (envelope, error) {
	return call(c, resty.MethodGet, "/instructions/current", nil)
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
