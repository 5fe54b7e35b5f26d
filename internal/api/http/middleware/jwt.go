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

package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"
)

// IdentityKey JWT 中的身份字段
const IdentityKey = "user"

type loginRequest struct {
	Username  string `json:"username"`
	AccessKey string `json:"access_key"`
}

// NewJWTAuth 创建 JWT 中间件；登录时校验 access_key，token 可来自 Authorization 头或 ?token=
func NewJWTAuth(key []byte, timeout, maxRefresh time.Duration, accessKey string) (*jwt.HertzJWTMiddleware, error) {
	if len(key) == 0 {
		return nil, errors.New("jwt key is empty")
	}
	if accessKey == "" {
		return nil, errors.New("access key is empty")
	}
	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "codex",
		Key:         key,
		Timeout:     timeout,
		MaxRefresh:  maxRefresh,
		IdentityKey: IdentityKey,
		TokenLookup: "header: Authorization, query: token",
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if user, ok := data.(string); ok {
				return jwt.MapClaims{IdentityKey: user}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			return jwt.ExtractClaims(ctx, c)[IdentityKey]
		},
		Authenticator: func(ctx context.Context, c *app.RequestContext) (interface{}, error) {
			var req loginRequest
			if err := c.BindJSON(&req); err != nil || req.AccessKey == "" {
				return nil, jwt.ErrMissingLoginValues
			}
			if subtle.ConstantTimeCompare([]byte(req.AccessKey), []byte(accessKey)) != 1 {
				return nil, jwt.ErrFailedAuthentication
			}
			if req.Username == "" {
				req.Username = "codex"
			}
			return req.Username, nil
		},
		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			c.JSON(code, map[string]string{"status": "error", "message": message})
		},
	})
}
