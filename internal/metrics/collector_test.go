package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lachopopov/multiagent-system-demo/agent/conversation"
	"github.com/lachopopov/multiagent-system-demo/llm"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

var _ conversation.Metrics = (*Collector)(nil)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.llmRequestsTotal)
	assert.NotNil(t, collector.runsTotal)
	assert.NotNil(t, collector.selectionsTotal)
}

func TestNewCollector_NilLogger(t *testing.T) {
	assert.NotNil(t, NewCollector(nextTestNamespace(), nil))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/healthz", 200, 10*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/healthz", 200, 20*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/v1/transcript", 503, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/healthz", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/v1/transcript", "5xx")))
}

func TestCollector_ConversationMetrics(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordRun("explicit-keyword-match", 4, 3*time.Second)
	c.RecordRun("external-request", 1, time.Second)
	c.RecordRun("explicit-keyword-match", 6, 2*time.Second)
	c.RecordSelection("model")
	c.RecordSelection("fallback")
	c.RecordTurn("finance_agent", "automated", "ok", time.Second)
	c.RecordStateTransition("RUNNING", "AWAITING_HUMAN")
	c.RecordHumanWait("answered", 30*time.Second)
	c.RecordToolInvocation("check_budget", false)
	c.RecordToolInvocation("divide", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("explicit-keyword-match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.selectionsTotal.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues("finance_agent", "automated", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stateTransitions.WithLabelValues("RUNNING", "AWAITING_HUMAN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolInvocations.WithLabelValues("divide", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.humanWait))
	assert.Equal(t, 1, testutil.CollectAndCount(c.runDuration))
}

func TestCollector_UpdateConnectionPool(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())
	c.RecordDBConnections("sqlite", 3, 1)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("sqlite")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("sqlite")))
}

func TestInstrumentProvider(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())
	calls := 0
	p := InstrumentProvider(llm.ProviderFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("boom")
		}
		return &llm.ChatResponse{Model: "gpt-4o", Usage: llm.ChatUsage{PromptTokens: 12, CompletionTokens: 3}}, nil
	}), c)

	_, err := p.Completion(context.Background(), &llm.ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	_, err = p.Completion(context.Background(), &llm.ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)

	assert.Equal(t, "func", p.Name())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("func", "gpt-4o", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("func", "gpt-4o", "error")))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("func", "gpt-4o", "prompt")))
}

func TestInstrumentProvider_NilPassthrough(t *testing.T) {
	assert.Nil(t, InstrumentProvider(nil, NewCollector(nextTestNamespace(), nil)))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			c.RecordHTTPRequest("GET", "/metrics", 200, time.Millisecond)
			c.RecordSelection("model")
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, 10.0, testutil.ToFloat64(c.selectionsTotal.WithLabelValues("model")))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(304))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(500))
	assert.Equal(t, "unknown", statusCode(100))
}
