package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lachopopov/multiagent-system-demo/llm"
	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// Handler executes a tool against schema-validated arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Definition describes one tool.
type Definition struct {
	ID          ToolID
	Description string
	Parameters  map[string]any // JSON Schema, object type
	Timeout     time.Duration  // Execution timeout (default 10s)
	Handler     Handler
}

type entry struct {
	def    Definition
	schema *jsonschema.Schema
	raw    json.RawMessage
}

// Registry holds the tools available to a crew. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[ToolID]*entry
	logger *zap.Logger
}

// NewRegistry 创建工具注册中心。
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[ToolID]*entry),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

// Register adds a tool. The ID must belong to the closed set and the parameter schema must compile.
func (r *Registry) Register(def Definition) error {
	if !def.ID.Valid() {
		return fmt.Errorf("tool %q is not part of the tool catalog", def.ID)
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s has no handler", def.ID)
	}
	if def.Timeout == 0 {
		def.Timeout = 10 * time.Second
	}

	schema, raw, err := compileSchema(def.ID, def.Parameters)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", def.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.ID]; exists {
		return fmt.Errorf("tool %s already registered", def.ID)
	}
	r.tools[def.ID] = &entry{def: def, schema: schema, raw: raw}

	r.logger.Debug("tool registered", zap.String("name", string(def.ID)), zap.Duration("timeout", def.Timeout))
	return nil
}

// MustRegister registers every definition and panics on error. Used for static tool packages.
func (r *Registry) MustRegister(defs ...Definition) *Registry {
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Has reports whether id is registered.
func (r *Registry) Has(id ToolID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[id]
	return ok
}

// IDs returns registered tool IDs in lexical order.
func (r *Registry) IDs() []ToolID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]ToolID, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Schemas returns LLM tool schemas for ids in the given order. Unregistered ids are skipped.
func (r *Registry) Schemas(ids ...ToolID) []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolSchema, 0, len(ids))
	for _, id := range ids {
		e, ok := r.tools[id]
		if !ok {
			continue
		}
		out = append(out, llm.ToolSchema{
			Name:        string(id),
			Description: e.def.Description,
			Parameters:  e.raw,
		})
	}
	return out
}

func (r *Registry) get(id ToolID) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[id]
	return e, ok
}

func compileSchema(id ToolID, params map[string]any) (*jsonschema.Schema, json.RawMessage, error) {
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, nil, err
	}
	url := string(id) + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(string(b))); err != nil {
		return nil, nil, err
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, nil, err
	}
	return s, b, nil
}

// Typed adapts a function over a typed argument struct into a Handler.
// Arguments are decoded through mapstructure using `json` tags.
func Typed[A any, R any](fn func(ctx context.Context, args A) (R, error)) Handler {
	return func(ctx context.Context, raw map[string]any) (any, error) {
		var args A
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName: "json",
			Result:  &args,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
		return fn(ctx, args)
	}
}
