package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lachopopov/multiagent-system-demo/agent/conversation"
	"github.com/lachopopov/multiagent-system-demo/agent/transcript"
	"github.com/lachopopov/multiagent-system-demo/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TranscriptSource 提供只读的会话记录
type TranscriptSource interface {
	Snapshot(ctx context.Context) (transcript.Snapshot, error)
	Ping(ctx context.Context) error
}

// RunStatus 报告编排器当前状态
type RunStatus interface {
	State() conversation.RunState
	RunID() string
}

// HTTPRecorder 记录请求指标（由 metrics.Collector 实现）
type HTTPRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// RouterConfig 描述路由依赖，除 Transcript 外都可以为空
type RouterConfig struct {
	Transcript TranscriptSource
	Status     RunStatus
	Metrics    HTTPRecorder
	Gatherer   prometheus.Gatherer
	Tracer     trace.Tracer
	Logger     *zap.Logger
	// JWT 配置后 /v1 下的接口需要 Bearer 令牌，/healthz 与 /metrics 不受影响
	JWT JWTConfig
}

type transcriptResponse struct {
	Messages []types.Message `json:"messages"`
	LastSeq  int64           `json:"last_seq"`
}

type statusResponse struct {
	State string `json:"state"`
	RunID string `json:"run_id,omitempty"`
}

// NewRouter 注册 /healthz、/metrics、/v1/transcript 与 /v1/status
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http_router"))
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(
		recovery(logger),
		requestID,
		securityHeaders,
		tracing(cfg.Tracer),
		requestLogger(logger),
		requestMetrics(cfg.Metrics),
	)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Transcript != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Transcript.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		if cfg.JWT.Enabled() {
			r.Use(jwtAuth(cfg.JWT, logger))
		}
		r.Get("/transcript", func(w http.ResponseWriter, r *http.Request) {
			if cfg.Transcript == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no transcript configured"})
				return
			}
			var since int64
			if v := r.URL.Query().Get("since"); v != "" {
				n, err := strconv.ParseInt(v, 10, 64)
				if err != nil || n < 0 {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be a non-negative integer"})
					return
				}
				since = n
			}
			snap, err := cfg.Transcript.Snapshot(r.Context())
			if err != nil {
				logger.Warn("transcript snapshot failed", zap.Error(err))
				writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
				return
			}
			msgs := snap.Since(since).Messages()
			if msgs == nil {
				msgs = []types.Message{}
			}
			writeJSON(w, http.StatusOK, transcriptResponse{Messages: msgs, LastSeq: snap.LastSeq()})
		})

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			if cfg.Status == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no conversation running"})
				return
			}
			writeJSON(w, http.StatusOK, statusResponse{State: string(cfg.Status.State()), RunID: cfg.Status.RunID()})
		})
	})

	return r
}

func statusFor(err error) int {
	if types.IsErrorCode(err, types.ErrStoreClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
