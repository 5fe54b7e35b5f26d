package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		SessionsActive, StreamEventsTotal,
		ToolCallsTotal, ToolDuration,
		TurnDuration, LLMTokensTotal,
		UsageEventsTotal,
	)
}

// SessionsActive 当前存活的会话数
var SessionsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "codex_sessions_active",
		Help: "当前存活的会话数",
	},
)

// StreamEventsTotal 推送给客户端的流事件数（按 wire 类型）
var StreamEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "codex_stream_events_total",
		Help: "推送给客户端的流事件数",
	},
	[]string{"type"},
)

// ToolCallsTotal 工具调用审批结果
var ToolCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "codex_tool_calls_total",
		Help: "工具调用审批次数",
	},
	[]string{"action"}, // approve | reject
)

// ToolDuration 工具调用耗时（秒）
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "codex_tool_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// TurnDuration 一次流（新回合或续写）耗时
var TurnDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "codex_turn_duration_seconds",
		Help:    "一次流式回合耗时（秒）",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	},
	[]string{"kind"}, // turn | continuation
)

// LLMTokensTotal LLM 调用 token 数
var LLMTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "codex_llm_tokens_total",
		Help: "LLM 调用 token 总数",
	},
	[]string{"direction"}, // input | output
)

// UsageEventsTotal 实际写入的使用记录数
var UsageEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "codex_usage_events_total",
		Help: "写入的使用记录数",
	},
	[]string{"method"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
