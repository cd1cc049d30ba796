package retry

import (
	"context"
	"errors"

	"github.com/lachopopov/multiagent-system-demo/llm"
	"github.com/lachopopov/multiagent-system-demo/types"
)

// GenerationRetryable 判断生成调用错误是否值得重试：
// Provider 标记为可重试的错误，或单次调用超时。
func GenerationRetryable(err error) bool {
	return llm.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded)
}

// Complete 以有界重试调用 Provider。
// 失败被归一为 GENERATION_TIMEOUT 或 GENERATION_UNAVAILABLE；
// 外层 ctx 被取消时原样返回 ctx.Err()。
func Complete(ctx context.Context, r *Retryer, p llm.Provider, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p == nil {
		return nil, types.NewError(types.ErrGenerationUnavailable, "no text generation provider configured")
	}
	resp, err := Do(ctx, r, func(ctx context.Context) (*llm.ChatResponse, error) {
		callCtx := ctx
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}
		resp, err := p.Completion(callCtx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil || len(resp.Choices) == 0 {
			return nil, &llm.Error{
				Code:      llm.ErrUpstreamError,
				Message:   "empty completion response",
				Retryable: true,
				Provider:  p.Name(),
			}
		}
		return resp, nil
	})
	if err == nil {
		return resp, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, GenerationError(p.Name(), err)
}

// GenerationError 把 Provider 错误映射为模块错误码。
func GenerationError(provider string, err error) *types.Error {
	cause := err
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		cause = exhausted.Last
	}
	var lerr *llm.Error
	timeout := errors.Is(cause, context.DeadlineExceeded) ||
		(errors.As(cause, &lerr) && lerr.Code == llm.ErrUpstreamTimeout)
	if timeout {
		return types.Errorf(types.ErrGenerationTimeout, "generation via %s timed out", provider).WithCause(err)
	}
	return types.Errorf(types.ErrGenerationUnavailable, "generation via %s unavailable", provider).WithCause(err)
}
