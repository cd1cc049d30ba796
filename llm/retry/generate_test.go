package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lachopopov/multiagent-system-demo/llm"
	"github.com/lachopopov/multiagent-system-demo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastRetryer(retries int) *Retryer {
	return New(Policy{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
		Retryable:    GenerationRetryable,
	}, zap.NewNop())
}

func textResponse(s string) *llm.ChatResponse {
	return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: llm.Message{Role: llm.RoleAssistant, Content: s}}}}
}

func TestComplete_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	p := llm.ProviderFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, &llm.Error{Code: llm.ErrRateLimited, Retryable: true, Message: "slow down"}
		}
		return textResponse("finance_agent"), nil
	})

	resp, err := Complete(context.Background(), fastRetryer(2), p, &llm.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "finance_agent", resp.Text())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestComplete_ExhaustionBecomesUnavailable(t *testing.T) {
	var calls int32
	p := llm.ProviderFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Retryable: true, Message: "502"}
	})

	_, err := Complete(context.Background(), fastRetryer(2), p, &llm.ChatRequest{})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrGenerationUnavailable))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestComplete_NonRetryableFailsFast(t *testing.T) {
	var calls int32
	p := llm.ProviderFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &llm.Error{Code: llm.ErrUnauthorized, Message: "bad key"}
	})

	_, err := Complete(context.Background(), fastRetryer(3), p, &llm.ChatRequest{})
	assert.True(t, types.IsErrorCode(err, types.ErrGenerationUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	var lerr *llm.Error
	assert.True(t, errors.As(err, &lerr))
}

func TestComplete_PerCallTimeout(t *testing.T) {
	p := llm.ProviderFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := Complete(context.Background(), fastRetryer(1), p, &llm.ChatRequest{Timeout: 5 * time.Millisecond})
	assert.True(t, types.IsErrorCode(err, types.ErrGenerationTimeout))
}

func TestComplete_EmptyResponseRetried(t *testing.T) {
	var calls int32
	p := llm.ProviderFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return &llm.ChatResponse{}, nil
		}
		return textResponse("ok"), nil
	})

	resp, err := Complete(context.Background(), fastRetryer(1), p, &llm.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())
}

func TestComplete_CancelledContextReturnedAsIs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := llm.ProviderFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return textResponse("unused"), nil
	})

	_, err := Complete(ctx, fastRetryer(1), p, &llm.ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComplete_NilProvider(t *testing.T) {
	_, err := Complete(context.Background(), fastRetryer(0), nil, &llm.ChatRequest{})
	assert.True(t, types.IsErrorCode(err, types.ErrGenerationUnavailable))
}
