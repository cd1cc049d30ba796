package crews

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lachopopov/multiagent-system-demo/agent/assistant"
	"github.com/lachopopov/multiagent-system-demo/agent/participant"
	"github.com/lachopopov/multiagent-system-demo/agent/selector"
	"github.com/lachopopov/multiagent-system-demo/llm"
	"github.com/lachopopov/multiagent-system-demo/llm/retry"
	"github.com/lachopopov/multiagent-system-demo/llm/tools"
	"github.com/lachopopov/multiagent-system-demo/tools/calculator"
	"github.com/lachopopov/multiagent-system-demo/tools/procurement"
	"github.com/lachopopov/multiagent-system-demo/types"
)

// Role 定义团队中的一个参与者
type Role struct {
	Name         string         `json:"name" yaml:"name"`
	Description  string         `json:"description" yaml:"description"`
	SystemPrompt string         `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Tools        []tools.ToolID `json:"tools,omitempty" yaml:"tools,omitempty"`
	Human        bool           `json:"human,omitempty" yaml:"human,omitempty"`
}

// kind maps the role onto a participant kind.
func (r Role) kind() participant.Kind {
	if r.Human {
		return participant.KindHuman
	}
	return participant.KindAutomated
}

// Definition 描述一个团队：角色列表与选择器提示
type Definition struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Roles       []Role `json:"roles" yaml:"roles"`
	// Template and Policy feed the speaker selector. Empty Template means selector.DefaultTemplate.
	Template string `json:"template,omitempty" yaml:"template,omitempty"`
	Policy   string `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// Validate checks role names and tool ids before anything is built.
func (d Definition) Validate() error {
	if len(d.Roles) == 0 {
		return types.Errorf(types.ErrInvalidInput, "crew %s has no roles", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Roles))
	for _, r := range d.Roles {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return types.Errorf(types.ErrInvalidInput, "crew %s has a role without a name", d.Name)
		}
		if _, dup := seen[name]; dup {
			return types.Errorf(types.ErrDuplicateParticipant, "crew %s lists %s twice", d.Name, name)
		}
		seen[name] = struct{}{}
		if r.Human && len(r.Tools) > 0 {
			return types.Errorf(types.ErrInvalidInput, "human role %s cannot use tools", name)
		}
		for _, id := range r.Tools {
			if !id.Valid() {
				return types.Errorf(types.ErrInvalidInput, "role %s lists unknown tool %q", name, id)
			}
		}
	}
	return nil
}

// HumanName returns the first human role, or "" when the crew is fully automated.
func (d Definition) HumanName() string {
	for _, r := range d.Roles {
		if r.Human {
			return r.Name
		}
	}
	return ""
}

// SelectorConfig overlays the crew's template and policy onto base.
func (d Definition) SelectorConfig(base selector.Config) selector.Config {
	if d.Template != "" {
		base.Template = d.Template
	}
	if d.Policy != "" {
		base.Policy = d.Policy
	}
	return base
}

// AgentSettings 自动参与者的生成参数，对所有角色通用
type AgentSettings struct {
	Model         string
	Temperature   float32
	MaxTokens     int
	MaxToolRounds int
	Timeout       time.Duration
	Retryer       *retry.Retryer
}

// Crew 是构建完成的团队
type Crew struct {
	Definition Definition
	Registry   *participant.Registry
	Tools      *tools.Registry
}

// NewToolRegistry registers the whole closed tool set.
func NewToolRegistry(logger *zap.Logger) (*tools.Registry, error) {
	r := tools.NewRegistry(logger)
	if err := procurement.Register(r); err != nil {
		return nil, fmt.Errorf("register procurement tools: %w", err)
	}
	if err := calculator.Register(r); err != nil {
		return nil, fmt.Errorf("register calculator tools: %w", err)
	}
	return r, nil
}

// Build turns def into a participant registry. Every automated role gets an
// assistant over provider, restricted to the role's tools. The registry is
// left unsealed; the orchestrator seals it.
func Build(def Definition, provider llm.Provider, settings AgentSettings, logger *zap.Logger) (*Crew, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, types.Errorf(types.ErrInvalidInput, "crew %s needs a provider", def.Name)
	}

	toolReg, err := NewToolRegistry(logger)
	if err != nil {
		return nil, err
	}
	executor := tools.NewExecutor(toolReg, logger)

	var opts []assistant.Option
	if settings.Retryer != nil {
		opts = append(opts, assistant.WithRetryer(settings.Retryer))
	}

	reg, err := participant.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, role := range def.Roles {
		p := participant.Participant{
			Name:        role.Name,
			Description: role.Description,
			Kind:        role.kind(),
			Tools:       role.Tools,
		}
		if !role.Human {
			p.Agent = assistant.New(assistant.Config{
				Name:          role.Name,
				SystemPrompt:  role.SystemPrompt,
				Model:         settings.Model,
				Temperature:   settings.Temperature,
				MaxTokens:     settings.MaxTokens,
				MaxToolRounds: settings.MaxToolRounds,
				Timeout:       settings.Timeout,
			}, provider, executor, role.Tools, logger, opts...)
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}

	logger.Debug("crew built",
		zap.String("crew", def.Name),
		zap.Int("participants", reg.Len()),
	)
	return &Crew{Definition: def, Registry: reg, Tools: toolReg}, nil
}
