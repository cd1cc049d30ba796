package participant

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lachopopov/multiagent-system-demo/llm/tools"
	"github.com/lachopopov/multiagent-system-demo/types"
)

// Kind distinguishes automated participants from the human approver.
type Kind string

const (
	KindAutomated Kind = "automated"
	KindHuman     Kind = "human"
)

// Agent produces one reply per turn for an automated participant.
// The returned message carries Content and ToolInvocations; sender, role and
// sequence are filled by the caller.
type Agent interface {
	Reply(ctx context.Context, history []types.Message) (types.Message, error)
}

// AgentFunc adapts a function into an Agent.
type AgentFunc func(ctx context.Context, history []types.Message) (types.Message, error)

func (f AgentFunc) Reply(ctx context.Context, history []types.Message) (types.Message, error) {
	return f(ctx, history)
}

// Participant is an entity that may be chosen to produce the next message.
type Participant struct {
	Name        string
	Description string
	Kind        Kind
	Tools       []tools.ToolID
	Agent       Agent
}

// IsHuman reports whether the participant is resolved through the human boundary.
func (p Participant) IsHuman() bool {
	return p.Kind == KindHuman
}

// ToolSet returns the participant's permitted tools.
func (p Participant) ToolSet() tools.ToolSet {
	return tools.NewToolSet(p.Tools...)
}

// Description is the selector-facing view of a participant.
type Description struct {
	Name        string
	Description string
	Kind        Kind
}

// Registry is the ordered roster of participants.
type Registry struct {
	mu     sync.RWMutex
	order  []Participant
	index  map[string]int
	sealed bool
}

// NewRegistry creates a registry and registers ps in order.
func NewRegistry(ps ...Participant) (*Registry, error) {
	r := &Registry{index: make(map[string]int)}
	for _, p := range ps {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a participant. Names are unique and case-sensitive.
func (r *Registry) Register(p Participant) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return types.NewError(types.ErrInvalidInput, "participant name is empty")
	}
	if p.Kind == "" {
		p.Kind = KindAutomated
	}
	if p.Kind != KindAutomated && p.Kind != KindHuman {
		return types.Errorf(types.ErrInvalidInput, "participant %s has unknown kind %q", p.Name, p.Kind)
	}
	if p.Kind == KindAutomated && p.Agent == nil {
		return types.Errorf(types.ErrInvalidInput, "automated participant %s has no agent", p.Name)
	}
	if p.Name == types.SenderUser {
		return types.Errorf(types.ErrInvalidInput, "participant name %q is reserved", p.Name)
	}
	for _, id := range p.Tools {
		if !id.Valid() {
			return types.Errorf(types.ErrInvalidInput, "participant %s lists unknown tool %q", p.Name, id)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return types.Errorf(types.ErrRegistrySealed, "registry is sealed, cannot add %s", p.Name)
	}
	if _, exists := r.index[p.Name]; exists {
		return types.Errorf(types.ErrDuplicateParticipant, "participant %s already registered", p.Name)
	}
	p.Tools = append([]tools.ToolID(nil), p.Tools...)
	r.index[p.Name] = len(r.order)
	r.order = append(r.order, p)
	return nil
}

// Seal makes the registry immutable.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// DescribeAll returns participant descriptions in registration order.
func (r *Registry) DescribeAll() []Description {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Description, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, Description{Name: p.Name, Description: p.Description, Kind: p.Kind})
	}
	return out
}

// Resolve looks up a participant by exact name.
func (r *Registry) Resolve(name string) (Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	if !ok {
		return Participant{}, types.Errorf(types.ErrUnknownParticipant, "participant %q is not registered", name)
	}
	return r.order[i], nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[name]
	return ok
}

// Names returns participant names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	for i, p := range r.order {
		out[i] = p.Name
	}
	return out
}

// Len returns the number of participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// String renders "name: description" lines, one per participant.
func (r *Registry) String() string {
	var b strings.Builder
	for i, d := range r.DescribeAll() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", d.Name, d.Description)
	}
	return b.String()
}
