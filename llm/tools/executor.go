package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lachopopov/multiagent-system-demo/llm"
	"github.com/lachopopov/multiagent-system-demo/types"
	"go.uber.org/zap"
)

// Executor runs tool calls against a Registry. Failures never escape as Go errors:
// they are recorded in the returned types.ToolResult.
type Executor struct {
	registry *Registry
	logger   *zap.Logger
}

// NewExecutor 创建工具执行器。
func NewExecutor(registry *Registry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry: registry,
		logger:   logger.With(zap.String("component", "tool_executor")),
	}
}

// Registry returns the registry the executor resolves tools from.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs calls one at a time in call order.
func (e *Executor) Execute(ctx context.Context, calls []llm.ToolCall, allowed ToolSet) []types.ToolResult {
	results := make([]types.ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.ExecuteOne(ctx, call, allowed))
	}
	return results
}

// ExecuteOne runs a single call. A nil allowed set permits every registered tool.
func (e *Executor) ExecuteOne(ctx context.Context, call llm.ToolCall, allowed ToolSet) types.ToolResult {
	start := time.Now()
	result := types.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
	}
	fail := func(msg string) types.ToolResult {
		result.Error = msg
		result.Duration = time.Since(start)
		e.logger.Warn("tool call failed",
			zap.String("name", call.Name),
			zap.String("error", msg),
		)
		return result
	}

	id := ToolID(call.Name)

	// 1. 工具必须属于封闭集合并且已注册
	ent, ok := e.registry.get(id)
	if !ok {
		return fail(fmt.Sprintf("tool not found: %s", call.Name))
	}

	// 2. 参与者权限
	if allowed != nil && !allowed.Contains(id) {
		return fail(fmt.Sprintf("tool %s is not permitted for this participant", call.Name))
	}

	// 3. 参数解析与 Schema 校验
	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return fail(fmt.Sprintf("invalid arguments: %s", err.Error()))
		}
		if args == nil {
			args = map[string]any{}
		}
	}
	if err := ent.schema.Validate(args); err != nil {
		return fail(fmt.Sprintf("arguments failed schema validation: %s", err.Error()))
	}

	// 4. 执行工具（带超时控制）
	execCtx, cancel := context.WithTimeout(ctx, ent.def.Timeout)
	defer cancel()

	type outcome struct {
		res any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		res, err := ent.def.Handler(execCtx, args)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if ctx.Err() == nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
				return fail(fmt.Sprintf("execution timeout after %s", ent.def.Timeout))
			}
			return fail(o.err.Error())
		}
		raw, err := json.Marshal(o.res)
		if err != nil {
			return fail(fmt.Sprintf("encode result: %s", err.Error()))
		}
		result.Result = raw
		result.Duration = time.Since(start)
		e.logger.Debug("tool executed",
			zap.String("name", call.Name),
			zap.Duration("duration", result.Duration))
		return result
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return fail(fmt.Sprintf("execution cancelled: %s", ctx.Err()))
		}
		return fail(fmt.Sprintf("execution timeout after %s", ent.def.Timeout))
	}
}
