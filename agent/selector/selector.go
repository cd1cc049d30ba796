package selector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lachopopov/multiagent-system-demo/agent/participant"
	"github.com/lachopopov/multiagent-system-demo/agent/transcript"
	"github.com/lachopopov/multiagent-system-demo/llm"
	"github.com/lachopopov/multiagent-system-demo/llm/retry"
	"github.com/lachopopov/multiagent-system-demo/types"
)

// Method records how a decision was reached.
type Method string

const (
	MethodModel    Method = "model"
	MethodReprompt Method = "reprompt"
	MethodFallback Method = "fallback"
	MethodSingle   Method = "single"
)

// ErrNoCandidates is returned when nobody may speak next.
var ErrNoCandidates = types.NewError(types.ErrSelectionFailure, "no eligible participant")

// Decision is the selector output.
type Decision struct {
	Participant participant.Participant
	Method      Method
	// Raw holds the last model output, empty for MethodSingle.
	Raw string
}

// Config 选择器配置
type Config struct {
	Template             string        `yaml:"template" json:"template"`
	Policy               string        `yaml:"policy" json:"policy"`
	HistoryWindow        int           `yaml:"history_window" json:"history_window"`
	AllowRepeatedSpeaker bool          `yaml:"allow_repeated_speaker" json:"allow_repeated_speaker"`
	Model                string        `yaml:"model" json:"model"`
	Temperature          float32       `yaml:"temperature" json:"temperature"`
	MaxTokens            int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout              time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns the defaults used by the procurement crew.
func DefaultConfig() Config {
	return Config{
		Template:             DefaultTemplate,
		HistoryWindow:        20,
		AllowRepeatedSpeaker: true,
		MaxTokens:            32,
		Timeout:              30 * time.Second,
	}
}

// Selector picks the next speaker.
type Selector struct {
	cfg      Config
	provider llm.Provider
	retryer  *retry.Retryer
	logger   *zap.Logger
}

// Option customizes a Selector.
type Option func(*Selector)

// WithRetryer overrides the generation retry policy.
func WithRetryer(r *retry.Retryer) Option {
	return func(s *Selector) { s.retryer = r }
}

// New creates a Selector backed by provider.
func New(cfg Config, provider llm.Provider, logger *zap.Logger, opts ...Option) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Template == "" {
		cfg.Template = DefaultTemplate
	}
	s := &Selector{
		cfg:      cfg,
		provider: provider,
		logger:   logger.With(zap.String("component", "selector")),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retryer == nil {
		p := retry.DefaultPolicy()
		p.Retryable = retry.GenerationRetryable
		s.retryer = retry.New(p, logger)
	}
	return s
}

// Config returns the effective configuration.
func (s *Selector) Config() Config {
	return s.cfg
}

// Candidates returns the names eligible to speak after snap, in registration order.
func (s *Selector) Candidates(snap transcript.Snapshot, reg *participant.Registry) []string {
	names := reg.Names()
	if s.cfg.AllowRepeatedSpeaker {
		return names
	}
	prev, ok := snap.LastFrom(func(m types.Message) bool { return reg.Has(m.Sender) })
	if !ok {
		return names
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != prev.Sender {
			out = append(out, n)
		}
	}
	return out
}

// SelectNext chooses one registered participant. It never mutates the transcript.
func (s *Selector) SelectNext(ctx context.Context, snap transcript.Snapshot, reg *participant.Registry) (Decision, error) {
	candidates := s.Candidates(snap, reg)
	if len(candidates) == 0 {
		return Decision{}, ErrNoCandidates
	}
	if len(candidates) == 1 {
		return s.decide(reg, candidates[0], MethodSingle, "")
	}

	prompt := RenderPrompt(s.cfg.Template, PromptInput{
		Roles:      reg.DescribeAll(),
		History:    snap.Tail(s.cfg.HistoryWindow),
		Candidates: candidates,
		Policy:     s.cfg.Policy,
	})
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: prompt}}

	raw, err := s.generate(ctx, msgs)
	if err != nil {
		return Decision{}, err
	}
	if name, ok := ParseName(raw, candidates); ok {
		return s.decide(reg, name, MethodModel, raw)
	}
	s.logger.Debug("选择结果无法解析，重新提示", zap.String("raw", raw))

	msgs = append(msgs,
		llm.Message{Role: llm.RoleAssistant, Content: raw},
		llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(repromptTemplate, raw, strings.Join(candidates, ", "))},
	)
	raw, err = s.generate(ctx, msgs)
	if err != nil {
		return Decision{}, err
	}
	if name, ok := ParseName(raw, candidates); ok {
		return s.decide(reg, name, MethodReprompt, raw)
	}

	name := fallback(snap, candidates)
	s.logger.Warn("选择器回退到确定性规则",
		zap.String("raw", raw),
		zap.String("participant", name),
	)
	return s.decide(reg, name, MethodFallback, raw)
}

func (s *Selector) generate(ctx context.Context, msgs []llm.Message) (string, error) {
	req := &llm.ChatRequest{
		Model:       s.cfg.Model,
		Messages:    msgs,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Timeout:     s.cfg.Timeout,
		Metadata:    map[string]string{llm.MetadataPurpose: llm.PurposeSpeakerSelection},
	}
	resp, err := retry.Complete(ctx, s.retryer, s.provider, req)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func (s *Selector) decide(reg *participant.Registry, name string, m Method, raw string) (Decision, error) {
	p, err := reg.Resolve(name)
	if err != nil {
		return Decision{}, types.NewError(types.ErrSelectionFailure, "selected participant vanished").WithCause(err)
	}
	return Decision{Participant: p, Method: m, Raw: raw}, nil
}

// fallback returns the first candidate that has not spoken, else the first candidate.
func fallback(snap transcript.Snapshot, candidates []string) string {
	for _, c := range candidates {
		if !snap.HasSpoken(c) {
			return c
		}
	}
	return candidates[0]
}
