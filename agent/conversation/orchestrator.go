package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lachopopov/multiagent-system-demo/agent/hitl"
	"github.com/lachopopov/multiagent-system-demo/agent/participant"
	"github.com/lachopopov/multiagent-system-demo/agent/selector"
	"github.com/lachopopov/multiagent-system-demo/agent/termination"
	"github.com/lachopopov/multiagent-system-demo/agent/transcript"
	"github.com/lachopopov/multiagent-system-demo/internal/ctxkeys"
	"github.com/lachopopov/multiagent-system-demo/types"
)

const tracerName = "github.com/lachopopov/multiagent-system-demo/agent/conversation"

// DefaultHumanPrompt is shown to the human participant when it is selected.
const DefaultHumanPrompt = "Enter your response"

// SpeakerSelector picks the next participant. *selector.Selector implements it.
type SpeakerSelector interface {
	SelectNext(ctx context.Context, snap transcript.Snapshot, reg *participant.Registry) (selector.Decision, error)
}

// HumanBoundary suspends the run until the human answers. *hitl.Boundary implements it.
type HumanBoundary interface {
	Await(ctx context.Context, req hitl.Request) (string, error)
}

// Orchestrator drives selector group chat runs over one transcript.
type Orchestrator struct {
	registry  *participant.Registry
	store     transcript.Store
	evaluator *termination.Evaluator
	selector  SpeakerSelector
	human     HumanBoundary

	logger      *zap.Logger
	metrics     Metrics
	tracer      trace.Tracer
	observers   []Observer
	humanPrompt string

	mu     sync.RWMutex
	state  RunState
	runID  string
	cancel context.CancelFunc
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers an event observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer overrides the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithHumanPrompt sets the prompt text of human input requests.
func WithHumanPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.humanPrompt = prompt }
}

// New wires an orchestrator and seals the registry.
// human may be nil only when no participant is human.
func New(reg *participant.Registry, store transcript.Store, eval *termination.Evaluator,
	sel SpeakerSelector, human HumanBoundary, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	switch {
	case reg == nil:
		return nil, types.NewError(types.ErrInvalidInput, "participant registry is required")
	case store == nil:
		return nil, types.NewError(types.ErrInvalidInput, "transcript store is required")
	case eval == nil:
		return nil, types.NewError(types.ErrInvalidInput, "termination evaluator is required")
	case sel == nil:
		return nil, types.NewError(types.ErrInvalidInput, "speaker selector is required")
	}
	if human == nil {
		for _, d := range reg.DescribeAll() {
			if d.Kind == participant.KindHuman {
				return nil, types.Errorf(types.ErrInvalidInput, "human participant %s needs an input boundary", d.Name)
			}
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	reg.Seal()

	o := &Orchestrator{
		registry:    reg,
		store:       store,
		evaluator:   eval,
		selector:    sel,
		human:       human,
		logger:      logger.With(zap.String("component", "orchestrator")),
		metrics:     nopMetrics{},
		tracer:      otel.Tracer(tracerName),
		humanPrompt: DefaultHumanPrompt,
		state:       StateTerminated,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// State returns the current run state.
func (o *Orchestrator) State() RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// RunID returns the id of the current or last run.
func (o *Orchestrator) RunID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.runID
}

// Registry returns the sealed participant registry.
func (o *Orchestrator) Registry() *participant.Registry {
	return o.registry
}

// History returns the whole transcript.
func (o *Orchestrator) History(ctx context.Context) (transcript.Snapshot, error) {
	return o.store.Snapshot(ctx)
}

// RequestStop asks the run to end at the next termination check.
func (o *Orchestrator) RequestStop() {
	o.evaluator.External().Request()
}

// Stop ends the run at its current suspension point.
func (o *Orchestrator) Stop() {
	o.evaluator.External().Request()
	o.mu.RLock()
	cancel := o.cancel
	o.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Run appends task and drives turns until a termination condition fires.
// Selection and generation failures end the run and are returned together
// with the result; the transcript keeps everything appended so far.
func (o *Orchestrator) Run(ctx context.Context, task string) (*RunResult, error) {
	if strings.TrimSpace(task) == "" {
		return nil, types.NewError(types.ErrInvalidInput, "task is empty")
	}

	o.mu.Lock()
	if o.state != StateTerminated {
		state := o.state
		o.mu.Unlock()
		return nil, types.Errorf(types.ErrInvalidTransition, "run already in progress (state %s)", state)
	}
	runID := ulid.Make().String()
	runCtx, cancel := context.WithCancel(ctx)
	o.runID = runID
	o.cancel = cancel
	o.mu.Unlock()
	defer func() {
		cancel()
		o.mu.Lock()
		o.cancel = nil
		o.mu.Unlock()
	}()

	o.evaluator.External().Reset()
	runCtx = ctxkeys.WithRunID(runCtx, runID)
	runCtx, span := o.tracer.Start(runCtx, "conversation.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("participants", o.registry.Len()),
	))
	defer span.End()

	r := &run{o: o, id: runID, span: span, start: time.Now(), logger: o.logger.With(zap.String("run_id", runID))}

	taskMsg := types.NewUserMessage(task)
	taskMsg.RunID = runID
	appended, err := o.store.Append(runCtx, taskMsg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append task")
		return nil, err
	}
	r.res = &RunResult{RunID: runID, StartSeq: appended.Seq, EndSeq: appended.Seq}
	o.transition(runID, StateRunning)
	o.emit(Event{Type: EventMessageAppended, RunID: runID, State: StateRunning, Message: &appended})
	r.logger.Info("运行开始", zap.Int64("start_seq", appended.Seq))

	return r.loop(runCtx)
}

// run holds per-run bookkeeping.
type run struct {
	o      *Orchestrator
	id     string
	span   trace.Span
	start  time.Time
	res    *RunResult
	logger *zap.Logger
}

func (r *run) loop(ctx context.Context) (*RunResult, error) {
	o := r.o
	windowStart := r.res.StartSeq - 1

	for {
		if ctx.Err() != nil {
			return r.finish(ctx, termination.ReasonExternalRequest, "cancelled", nil)
		}

		snap, err := o.store.Snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return r.finish(ctx, termination.ReasonExternalRequest, "cancelled", nil)
			}
			return r.finish(ctx, termination.ReasonStoreFailure, err.Error(), err)
		}

		if sig := o.evaluator.Evaluate(snap.Since(windowStart)); sig.Stop {
			return r.finish(ctx, sig.Reason, sig.Detail, nil)
		}

		dec, err := o.selector.SelectNext(ctx, snap, o.registry)
		if err != nil {
			if ctx.Err() != nil {
				return r.finish(ctx, termination.ReasonExternalRequest, "cancelled", nil)
			}
			if isGenerationError(err) {
				return r.finish(ctx, termination.ReasonGenerationUnavailable, err.Error(), err)
			}
			return r.finish(ctx, termination.ReasonSelectionFailure, err.Error(), err)
		}
		speaker := dec.Participant
		o.metrics.RecordSelection(string(dec.Method))
		o.emit(Event{Type: EventSpeakerSelected, RunID: r.id, State: o.State(), Speaker: speaker.Name, Method: string(dec.Method)})
		r.logger.Debug("选中发言者", zap.String("participant", speaker.Name), zap.String("method", string(dec.Method)))

		turnCtx := ctxkeys.WithParticipant(ctx, speaker.Name)
		var msg types.Message
		if speaker.IsHuman() {
			text, stop, detail := r.awaitHuman(turnCtx, speaker)
			if stop {
				o.evaluator.External().Request()
				return r.finish(ctx, termination.ReasonExternalRequest, detail, nil)
			}
			msg = types.NewMessage(speaker.Name, types.RoleUser, text)
		} else {
			msg, err = r.generate(turnCtx, speaker, snap)
			if err != nil {
				if ctx.Err() != nil {
					return r.finish(ctx, termination.ReasonExternalRequest, "cancelled", nil)
				}
				return r.finish(ctx, termination.ReasonGenerationUnavailable, err.Error(), err)
			}
		}

		msg.RunID = r.id
		appended, err := o.store.Append(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return r.finish(ctx, termination.ReasonExternalRequest, "cancelled", nil)
			}
			return r.finish(ctx, termination.ReasonStoreFailure, err.Error(), err)
		}
		r.res.Turns++
		r.res.EndSeq = appended.Seq
		for _, inv := range appended.ToolInvocations {
			o.metrics.RecordToolInvocation(inv.Tool, inv.Failed())
		}
		o.emit(Event{Type: EventMessageAppended, RunID: r.id, State: o.State(), Speaker: speaker.Name, Message: &appended})
	}
}

// generate asks an automated participant for its message.
func (r *run) generate(ctx context.Context, p participant.Participant, snap transcript.Snapshot) (types.Message, error) {
	ctx, span := r.o.tracer.Start(ctx, "conversation.turn", trace.WithAttributes(
		attribute.String("participant", p.Name),
		attribute.String("kind", string(p.Kind)),
	))
	defer span.End()

	start := time.Now()
	reply, err := p.Agent.Reply(ctx, snap.Messages())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reply failed")
		r.o.metrics.RecordTurn(p.Name, string(p.Kind), "error", time.Since(start))
		if _, ok := types.AsError(err); !ok && ctx.Err() == nil {
			err = types.Errorf(types.ErrGenerationUnavailable, "participant %s failed to reply", p.Name).WithCause(err)
		}
		return types.Message{}, err
	}
	r.o.metrics.RecordTurn(p.Name, string(p.Kind), "ok", time.Since(start))

	reply.ID = ""
	reply.Seq = 0
	reply.Sender = p.Name
	if reply.Role == "" {
		reply.Role = types.RoleAssistant
	}
	span.SetAttributes(attribute.Int("tool_invocations", len(reply.ToolInvocations)))
	return reply, nil
}

// awaitHuman suspends in AWAITING_HUMAN. stop is true when the run must end.
func (r *run) awaitHuman(ctx context.Context, p participant.Participant) (text string, stop bool, detail string) {
	o := r.o
	o.transition(r.id, StateAwaitingHuman)
	ctx, span := o.tracer.Start(ctx, "conversation.await_human", trace.WithAttributes(attribute.String("participant", p.Name)))
	defer span.End()

	start := time.Now()
	raw, err := o.human.Await(ctx, hitl.Request{RunID: r.id, Participant: p.Name, Prompt: o.humanPrompt})
	waited := time.Since(start)

	switch {
	case err != nil:
		outcome := "cancelled"
		if errors.Is(err, hitl.ErrHumanTimeout) {
			outcome = "timeout"
		}
		o.metrics.RecordHumanWait(outcome, waited)
		r.logger.Info("人工输入结束运行", zap.String("outcome", outcome), zap.Error(err))
		return "", true, "human input " + outcome
	case hitl.IsExitInput(raw):
		o.metrics.RecordHumanWait("exit", waited)
		return "", true, "human ended the conversation"
	}

	o.metrics.RecordHumanWait("answered", waited)
	o.metrics.RecordTurn(p.Name, string(p.Kind), "ok", waited)
	o.transition(r.id, StateRunning)
	return strings.TrimSpace(raw), false, ""
}

// finish moves to TERMINATED and assembles the result.
func (r *run) finish(ctx context.Context, reason termination.Reason, detail string, runErr error) (*RunResult, error) {
	o := r.o
	res := r.res
	res.Reason = reason
	res.Detail = detail
	res.Duration = time.Since(r.start)

	// 运行可能已被取消，读取窗口时不继承取消信号
	if snap, err := o.store.Snapshot(context.WithoutCancel(ctx)); err == nil {
		window := snap.Since(res.StartSeq - 1)
		res.Messages = window.Messages()
		if window.LastSeq() > res.EndSeq {
			res.EndSeq = window.LastSeq()
		}
	} else {
		r.logger.Warn("读取运行窗口失败", zap.Error(err))
	}

	o.transition(r.id, StateTerminated)
	o.metrics.RecordRun(string(reason), res.Turns, res.Duration)

	r.span.SetAttributes(
		attribute.String("termination.reason", string(reason)),
		attribute.Int("turns", res.Turns),
	)
	fields := []zap.Field{
		zap.String("reason", string(reason)),
		zap.String("detail", detail),
		zap.Int("turns", res.Turns),
		zap.Duration("duration", res.Duration),
	}
	if runErr != nil {
		r.span.RecordError(runErr)
		r.span.SetStatus(codes.Error, string(reason))
		r.logger.Warn("运行异常结束", append(fields, zap.Error(runErr))...)
	} else {
		r.logger.Info("运行结束", fields...)
	}

	o.emit(Event{Type: EventRunFinished, RunID: r.id, State: StateTerminated, Result: res})
	return res, runErr
}

func (o *Orchestrator) transition(runID string, to RunState) {
	o.mu.Lock()
	from := o.state
	if from == to {
		o.mu.Unlock()
		return
	}
	if !CanTransition(from, to) {
		o.mu.Unlock()
		o.logger.Error("illegal state transition", zap.String("from", string(from)), zap.String("to", string(to)))
		return
	}
	o.state = to
	o.mu.Unlock()

	o.metrics.RecordStateTransition(string(from), string(to))
	o.emit(Event{Type: EventStateChanged, RunID: runID, State: to})
}

func (o *Orchestrator) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	for _, obs := range o.observers {
		obs(ev)
	}
}

func isGenerationError(err error) bool {
	code := types.GetErrorCode(err)
	return code == types.ErrGenerationUnavailable || code == types.ErrGenerationTimeout
}
