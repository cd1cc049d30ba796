// Package assistant implements automated participants backed by a text
// generation provider and a restricted tool subset.
package assistant

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lachopopov/multiagent-system-demo/llm"
	"github.com/lachopopov/multiagent-system-demo/llm/retry"
	"github.com/lachopopov/multiagent-system-demo/llm/tools"
	"github.com/lachopopov/multiagent-system-demo/types"
)

// DefaultMaxToolRounds bounds the reason-act loop of one turn.
const DefaultMaxToolRounds = 4

// Config 自动参与者配置
type Config struct {
	Name          string        `yaml:"name" json:"name"`
	SystemPrompt  string        `yaml:"system_prompt" json:"system_prompt"`
	Model         string        `yaml:"model" json:"model"`
	Temperature   float32       `yaml:"temperature" json:"temperature"`
	MaxTokens     int           `yaml:"max_tokens" json:"max_tokens"`
	MaxToolRounds int           `yaml:"max_tool_rounds" json:"max_tool_rounds"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
}

// Assistant produces one message per turn. Tool calls requested by the model
// run sequentially in call order and are recorded on the returned message.
type Assistant struct {
	cfg      Config
	provider llm.Provider
	executor *tools.Executor
	toolIDs  []tools.ToolID
	allowed  tools.ToolSet
	retryer  *retry.Retryer
	logger   *zap.Logger
}

// Option customizes an Assistant.
type Option func(*Assistant)

// WithRetryer overrides the generation retry policy.
func WithRetryer(r *retry.Retryer) Option {
	return func(a *Assistant) { a.retryer = r }
}

// New creates an Assistant. executor may be nil when toolIDs is empty.
func New(cfg Config, provider llm.Provider, executor *tools.Executor, toolIDs []tools.ToolID, logger *zap.Logger, opts ...Option) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	a := &Assistant{
		cfg:      cfg,
		provider: provider,
		executor: executor,
		toolIDs:  append([]tools.ToolID(nil), toolIDs...),
		allowed:  tools.NewToolSet(toolIDs...),
		logger:   logger.With(zap.String("component", "assistant"), zap.String("participant", cfg.Name)),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.retryer == nil {
		p := retry.DefaultPolicy()
		p.Retryable = retry.GenerationRetryable
		a.retryer = retry.New(p, logger)
	}
	return a
}

// Name returns the participant name.
func (a *Assistant) Name() string { return a.cfg.Name }

// Tools returns the permitted tool subset.
func (a *Assistant) Tools() []tools.ToolID {
	return append([]tools.ToolID(nil), a.toolIDs...)
}

// Reply runs one turn over history.
func (a *Assistant) Reply(ctx context.Context, history []types.Message) (types.Message, error) {
	msgs := a.buildMessages(history)

	var schemas []llm.ToolSchema
	if a.executor != nil && len(a.toolIDs) > 0 {
		schemas = a.executor.Registry().Schemas(a.toolIDs...)
	}

	var invocations []types.ToolInvocation
	var results []types.ToolResult
	for round := 0; ; round++ {
		req := &llm.ChatRequest{
			Model:       a.cfg.Model,
			Messages:    msgs,
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: a.cfg.Temperature,
			Timeout:     a.cfg.Timeout,
			Metadata:    map[string]string{llm.MetadataParticipant: a.cfg.Name},
		}
		// 最后一轮不再提供工具，强制模型给出文本
		if round < a.cfg.MaxToolRounds {
			req.Tools = schemas
		}

		resp, err := retry.Complete(ctx, a.retryer, a.provider, req)
		if err != nil {
			return types.Message{}, err
		}
		reply := resp.FirstMessage()
		if len(reply.ToolCalls) == 0 || req.Tools == nil {
			content := strings.TrimSpace(reply.Content)
			if content == "" {
				content = summarize(results)
			}
			out := types.NewMessage(a.cfg.Name, types.RoleAssistant, content)
			out.ToolInvocations = invocations
			return out, nil
		}

		a.logger.Debug("执行工具调用", zap.Int("round", round), zap.Int("calls", len(reply.ToolCalls)))
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: reply.Content, ToolCalls: reply.ToolCalls})

		var executed []types.ToolResult
		if a.executor == nil {
			executed = refuseAll(reply.ToolCalls)
		} else {
			executed = a.executor.Execute(ctx, reply.ToolCalls, a.allowed)
		}
		for i, res := range executed {
			invocations = append(invocations, res.Invocation(reply.ToolCalls[i].Arguments))
			msgs = append(msgs, llm.Message{
				Role:       llm.RoleTool,
				Name:       res.Name,
				ToolCallID: res.ToolCallID,
				Content:    res.Content(),
			})
		}
		results = append(results, executed...)

		if err := ctx.Err(); err != nil {
			return types.Message{}, err
		}
	}
}

// buildMessages maps the transcript onto chat messages from this participant's point of view.
func (a *Assistant) buildMessages(history []types.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	if a.cfg.SystemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: a.cfg.SystemPrompt})
	}
	for _, m := range history {
		if m.Sender == a.cfg.Name {
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
			continue
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Name: m.Sender, Content: m.Content})
	}
	return msgs
}

func summarize(results []types.ToolResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Content())
	}
	return strings.Join(parts, "\n")
}

func refuseAll(calls []llm.ToolCall) []types.ToolResult {
	out := make([]types.ToolResult, len(calls))
	for i, c := range calls {
		out[i] = types.ToolResult{ToolCallID: c.ID, Name: c.Name, Error: "no tools available"}
	}
	return out
}
