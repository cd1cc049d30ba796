package metrics

import (
	"context"
	"time"

	"github.com/lachopopov/multiagent-system-demo/llm"
)

// instrumentedProvider 记录每次生成调用的耗时、状态与 Token 用量
type instrumentedProvider struct {
	llm.Provider
	c *Collector
}

// InstrumentProvider wraps p so every Completion is recorded on c.
func InstrumentProvider(p llm.Provider, c *Collector) llm.Provider {
	if p == nil || c == nil {
		return p
	}
	return &instrumentedProvider{Provider: p, c: c}
}

func (p *instrumentedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := p.Provider.Completion(ctx, req)
	model := req.Model
	var prompt, completion int
	if resp != nil {
		if resp.Model != "" {
			model = resp.Model
		}
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	p.c.RecordLLMRequest(p.Name(), model, statusLabel(err), time.Since(start), prompt, completion)
	return resp, err
}
