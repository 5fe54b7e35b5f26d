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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API          APIConfig          `mapstructure:"api"`
	Agent        AgentConfig        `mapstructure:"agent"`
	Instructions InstructionsConfig `mapstructure:"instructions"`
	Usage        UsageConfig        `mapstructure:"usage"`
	Secrets      SecretsConfig      `mapstructure:"secrets"`
	Log          LogConfig          `mapstructure:"log"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
	Grpc       GrpcConfig       `mapstructure:"grpc"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
}

// GrpcConfig gRPC 健康检查服务配置
type GrpcConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Auth          bool   `mapstructure:"auth"`
	RateLimit     bool   `mapstructure:"rate_limit"`
	RateLimitRPS  int    `mapstructure:"rate_limit_rps"`
	JWTKey        string `mapstructure:"jwt_key"`
	JWTTimeout    string `mapstructure:"jwt_timeout"`     // 如 "1h"
	JWTMaxRefresh string `mapstructure:"jwt_max_refresh"` // 如 "1h"
	AccessKey     string `mapstructure:"access_key"`      // 登录口令，Auth 开启时必填
}

// WebSocketConfig 实时通道配置
type WebSocketConfig struct {
	Path           string  `mapstructure:"path"`             // 默认 /ws
	SendBuffer     int     `mapstructure:"send_buffer"`      // 每连接发送缓冲，默认 256
	WriteTimeout   string  `mapstructure:"write_timeout"`    // 如 "10s"
	MessagesPerSec float64 `mapstructure:"messages_per_sec"` // 每连接客户端消息限流，<=0 不限
	CheckOrigin    bool    `mapstructure:"check_origin"`     // true 时按 CORS allow_origins 校验 Origin
}

// AgentConfig Agent 与模型配置
type AgentConfig struct {
	Provider            string  `mapstructure:"provider"` // openai | azure
	Model               string  `mapstructure:"model"`
	BaseURL             string  `mapstructure:"base_url"`
	APIKey              string  `mapstructure:"api_key"` // 支持 ${ENV} 与 secret://key
	APIVersion          string  `mapstructure:"api_version"`
	Timeout             string  `mapstructure:"timeout"` // 模型请求超时，如 "120s"
	MaxTokens           int     `mapstructure:"max_tokens"`
	Temperature         float32 `mapstructure:"temperature"`
	Instructions        string  `mapstructure:"instructions"`
	FullStdout          bool    `mapstructure:"full_stdout"`
	MaxOutputBytes      int     `mapstructure:"max_output_bytes"`
	ShellTimeout        string  `mapstructure:"shell_timeout"`
	DisableProjectDoc   bool    `mapstructure:"disable_project_doc"`
	ProjectDocMaxBytes  int     `mapstructure:"project_doc_max_bytes"`
	Sandbox             string  `mapstructure:"sandbox"` // auto | bwrap | none
	ProbeModelsOnHealth bool    `mapstructure:"probe_models_on_health"`
}

// InstructionsConfig 指令文件存储配置
type InstructionsConfig struct {
	BaseDir string `mapstructure:"base_dir"` // 默认 ~/.dataagent
	Watch   bool   `mapstructure:"watch"`
}

// UsageConfig 使用记录配置
type UsageConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Type     string `mapstructure:"type"` // memory | postgres | redis
	DSN      string `mapstructure:"dsn"`  // postgres 连接串
	Addr     string `mapstructure:"addr"` // redis 地址
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SecretsConfig 密钥存储配置
type SecretsConfig struct {
	Provider string      `mapstructure:"provider"` // env | memory | vault
	Vault    VaultConfig `mapstructure:"vault"`
}

// VaultConfig Vault 连接配置
type VaultConfig struct {
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
	Prefix  string `mapstructure:"prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	EinoDevops EinoDevopsConfig `mapstructure:"eino_devops"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// EinoDevopsConfig Eino Dev 调试服务
type EinoDevopsConfig struct {
	Enable bool `mapstructure:"enable"`
}

// DefaultPath 默认配置文件路径，可由 CODEX_CONFIG 覆盖
func DefaultPath() string {
	if p := os.Getenv("CODEX_CONFIG"); p != "" {
		return p
	}
	return "configs/api.yaml"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 5000)
	v.SetDefault("api.cors.enable", true)
	v.SetDefault("api.cors.allow_origins", []string{"*"})
	v.SetDefault("api.middleware.rate_limit_rps", 100)
	v.SetDefault("api.middleware.jwt_timeout", "1h")
	v.SetDefault("api.middleware.jwt_max_refresh", "1h")
	v.SetDefault("api.grpc.port", 5001)
	v.SetDefault("api.websocket.path", "/ws")
	v.SetDefault("api.websocket.send_buffer", 256)
	v.SetDefault("api.websocket.write_timeout", "10s")
	v.SetDefault("agent.provider", "azure")
	v.SetDefault("agent.model", "codex-mini")
	v.SetDefault("agent.api_version", "2025-04-01-preview")
	v.SetDefault("agent.timeout", "120s")
	v.SetDefault("agent.max_tokens", 10000)
	v.SetDefault("agent.full_stdout", true)
	v.SetDefault("agent.max_output_bytes", 10*1024)
	v.SetDefault("agent.shell_timeout", "60s")
	v.SetDefault("agent.project_doc_max_bytes", 32*1024)
	v.SetDefault("agent.sandbox", "auto")
	v.SetDefault("instructions.watch", true)
	v.SetDefault("usage.type", "memory")
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.prometheus.enable", true)
	v.SetDefault("monitoring.tracing.service_name", "codex-api")
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// LoadAPIConfig 加载 API 配置
func LoadAPIConfig() (*Config, error) {
	return LoadConfig(DefaultPath())
}

// ExpandEnv 将 "${NAME}" 形式的值替换为环境变量，未设置时保持原值
func ExpandEnv(s string) string {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return s
	}
	if val := os.Getenv(strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")); val != "" {
		return val
	}
	return s
}

// replaceEnvVars 替换配置中的环境变量
func replaceEnvVars(config *Config) {
	for _, p := range []*string{
		&config.Agent.APIKey,
		&config.Agent.BaseURL,
		&config.API.Middleware.JWTKey,
		&config.API.Middleware.AccessKey,
		&config.Usage.DSN,
		&config.Usage.Password,
		&config.Secrets.Vault.Address,
		&config.Secrets.Vault.Token,
	} {
		*p = ExpandEnv(*p)
		// 未设置的占位视为未配置
		if strings.HasPrefix(*p, "${") {
			*p = ""
		}
	}
}
