package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/lachopopov/multiagent-system-demo/agent/hitl"
	"github.com/lachopopov/multiagent-system-demo/agent/participant"
	"github.com/lachopopov/multiagent-system-demo/agent/selector"
	"github.com/lachopopov/multiagent-system-demo/agent/termination"
	"github.com/lachopopov/multiagent-system-demo/agent/transcript"
	"github.com/lachopopov/multiagent-system-demo/llm"
	"github.com/lachopopov/multiagent-system-demo/types"
)

// --- test doubles ---

func says(text string) participant.Agent {
	return participant.AgentFunc(func(ctx context.Context, _ []types.Message) (types.Message, error) {
		return types.Message{Content: text}, nil
	})
}

func failing(err error) participant.Agent {
	return participant.AgentFunc(func(ctx context.Context, _ []types.Message) (types.Message, error) {
		return types.Message{}, err
	})
}

// sequence selects the listed participants in order, repeating the last one.
type sequence struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (s *sequence) SelectNext(ctx context.Context, snap transcript.Snapshot, reg *participant.Registry) (selector.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return selector.Decision{}, s.err
	}
	name := s.names[0]
	if len(s.names) > 1 {
		s.names = s.names[1:]
	}
	p, err := reg.Resolve(name)
	if err != nil {
		return selector.Decision{}, err
	}
	return selector.Decision{Participant: p, Method: selector.MethodModel}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) states() []RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RunState
	for _, ev := range r.events {
		if ev.Type == EventStateChanged {
			out = append(out, ev.State)
		}
	}
	return out
}

type fixture struct {
	store    *transcript.MemoryStore
	boundary *hitl.Boundary
	orch     *Orchestrator
	rec      *recorder
}

func newFixture(t *testing.T, ps []participant.Participant, sel SpeakerSelector, maxMessages int, opts ...Option) *fixture {
	t.Helper()
	reg, err := participant.NewRegistry(ps...)
	require.NoError(t, err)
	f := &fixture{
		store:    transcript.NewMemoryStore(),
		boundary: hitl.NewBoundary(nil, 0, zaptest.NewLogger(t)),
		rec:      &recorder{},
	}
	eval := termination.New(termination.Config{Keywords: termination.DefaultKeywords, MaxMessages: maxMessages})
	opts = append(opts, WithObserver(f.rec.observe))
	f.orch, err = New(reg, f.store, eval, sel, f.boundary, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return f
}

func (f *fixture) senders(t *testing.T) []string {
	t.Helper()
	snap, err := f.store.Snapshot(context.Background())
	require.NoError(t, err)
	var out []string
	for _, m := range snap.Messages() {
		out = append(out, m.Sender)
	}
	return out
}

func human() participant.Participant {
	return participant.Participant{Name: "human_proxy_agent", Kind: participant.KindHuman, Description: "Human approver."}
}

// --- tests ---

func TestRun_KeywordTerminates(t *testing.T) {
	f := newFixture(t, []participant.Participant{
		{Name: "intake_agent", Agent: says("Structured the request.")},
		{Name: "reviewer_agent", Agent: says("Recommendation: APPROVED")},
	}, &sequence{names: []string{"intake_agent", "reviewer_agent"}}, 30)

	res, err := f.orch.Run(context.Background(), "Buy 50 MacBooks")
	require.NoError(t, err)
	assert.Equal(t, termination.ReasonKeyword, res.Reason)
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, StateTerminated, f.orch.State())
	assert.Equal(t, []string{"user", "intake_agent", "reviewer_agent"}, f.senders(t))
	require.Len(t, res.Messages, 3)
	assert.Equal(t, int64(1), res.StartSeq)
	assert.Equal(t, int64(3), res.EndSeq)
	for _, m := range res.Messages {
		assert.Equal(t, res.RunID, m.RunID)
	}
	assert.Equal(t, []RunState{StateRunning, StateTerminated}, f.rec.states())
}

func TestRun_MaxMessagesCountsRunWindow(t *testing.T) {
	f := newFixture(t, []participant.Participant{
		{Name: "policy_agent", Agent: says("checking")},
	}, &sequence{names: []string{"policy_agent"}}, 4)

	res, err := f.orch.Run(context.Background(), "task one")
	require.NoError(t, err)
	assert.Equal(t, termination.ReasonMessageCountExceeded, res.Reason)
	assert.Equal(t, 3, res.Turns)
	assert.Len(t, res.Messages, 4)

	// re-entry: same store, fresh window, new run id
	res2, err := f.orch.Run(context.Background(), "task two")
	require.NoError(t, err)
	assert.Equal(t, termination.ReasonMessageCountExceeded, res2.Reason)
	assert.Equal(t, 3, res2.Turns)
	assert.NotEqual(t, res.RunID, res2.RunID)
	assert.Equal(t, int64(5), res2.StartSeq)
	assert.Equal(t, res2.RunID, f.orch.RunID())

	n, err := f.store.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestRun_KeywordFromEarlierRunIgnoredOnReentry(t *testing.T) {
	f := newFixture(t, []participant.Participant{
		{Name: "reviewer_agent", Agent: says("FINAL_DECISION: REJECTED")},
		{Name: "policy_agent", Agent: says("checking")},
	}, &sequence{names: []string{"reviewer_agent", "policy_agent"}}, 4)

	res, err := f.orch.Run(context.Background(), "task one")
	require.NoError(t, err)
	assert.Equal(t, termination.ReasonKeyword, res.Reason)
	assert.Equal(t, 1, res.Turns)

	// the REJECTED message stays in the store but sits outside the new window
	res2, err := f.orch.Run(context.Background(), "task two")
	require.NoError(t, err)
	assert.Equal(t, termination.ReasonMessageCountExceeded, res2.Reason)
	assert.Equal(t, 3, res2.Turns)
}

// Scenario C: the reviewer escalates, the human enters "exit".
func TestRun_HumanExitEndsWithExternalRequest(t *testing.T) {
	f := newFixture(t, []participant.Participant{
		{Name: "reviewer_agent", Agent: says("Escalating to human approver.")},
		human(),
	}, &sequence{names: []string{"reviewer_agent", "human_proxy_agent"}}, 30)

	var sawAwaiting bool
	f.boundary.RegisterHandler(func(ctx context.Context, req hitl.Request) error {
		sawAwaiting = f.orch.State() == StateAwaitingHuman
		assert.Equal(t, "human_proxy_agent", req.Participant)
		assert.Equal(t, f.orch.RunID(), req.RunID)
		return f.boundary.Respond(req.ID, "exit")
	})

	res, err := f.orch.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, termination.ReasonExternalRequest, res.Reason)
	assert.True(t, sawAwaiting)
	assert.Equal(t, []string{"user", "reviewer_agent"}, f.senders(t), "exit input is not appended")
	assert.Equal(t, []RunState{StateRunning, StateAwaitingHuman, StateTerminated}, f.rec.states())
}

func TestRun_HumanEmptyInputEndsRun(t *testing.T) {
	f := newFixture(t, []participant.Participant{human()}, &sequence{names: []string{"human_proxy_agent"}}, 30)
	f.boundary.RegisterHandler(func(ctx context.Context, req hitl.Request) error {
		return f.boundary.Respond(req.ID, "   ")
	})

	res, err := f.orch.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, termination.ReasonExternalRequest, res.Reason)
	assert.Equal(t, 0, res.Turns)
}

func TestRun_HumanResponseAppended(t *testing.T) {
	f := newFixture(t, []participant.Participant{
		{Name: "reviewer_agent", Agent: says("FINAL_DECISION: approve")},
		human(),
	}, &sequence{names: []string{"human_proxy_agent", "reviewer_agent"}}, 30)
	f.boundary.RegisterHandler(func(ctx context.Context, req hitl.Request) error {
		return f.boundary.Respond(req.ID, "  Looks fine, go ahead.  ")
	})

	res, err := f.orch.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, termination.ReasonKeyword, res.Reason)
	require.Len(t, res.Messages, 3)
	assert.Equal(t, "human_proxy_agent", res.Messages[1].Sender)
	assert.Equal(t, types.RoleUser, res.Messages[1].Role)
	assert.Equal(t, "Looks fine, go ahead.", res.Messages[1].Content)
	assert.Equal(t,
		[]RunState{StateRunning, StateAwaitingHuman, StateRunning, StateTerminated},
		f.rec.states())
}

func TestRun_HumanTimeout(t *testing.T) {
	reg, err := participant.NewRegistry(human())
	require.NoError(t, err)
	store := transcript.NewMemoryStore()
	eval := termination.New(termination.Config{Keywords: termination.DefaultKeywords, MaxMessages: 30})
	boundary := hitl.NewBoundary(nil, 10*time.Millisecond, nil)
	orch, err := New(reg, store, eval, &sequence{names: []string{"human_proxy_agent"}}, boundary, nil)
	require.NoError(t, err)

	res, err := orch.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, termination.ReasonExternalRequest, res.Reason)
	assert.Contains(t, res.Detail, "timeout")
}

func TestRun_StopWhileAwaitingHuman(t *testing.T) {
	f := newFixture(t, []participant.Participant{human()}, &sequence{names: []string{"human_proxy_agent"}}, 30)
	f.boundary.RegisterHandler(func(ctx context.Context, req hitl.Request) error {
		f.orch.Stop()
		return nil
	})

	res, err := f.orch.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, termination.ReasonExternalRequest, res.Reason)
	assert.Equal(t, StateTerminated, f.orch.State())
	assert.Empty(t, f.boundary.Pending(""))
}

func TestRun_ContextCancelDuringGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocking := participant.AgentFunc(func(ctx context.Context, _ []types.Message) (types.Message, error) {
		cancel()
		<-ctx.Done()
		return types.Message{}, ctx.Err()
	})
	f := newFixture(t, []participant.Participant{{Name: "finance_agent", Agent: blocking}},
		&sequence{names: []string{"finance_agent"}}, 30)

	res, err := f.orch.Run(ctx, "task")
	require.NoError(t, err)
	assert.Equal(t, termination.ReasonExternalRequest, res.Reason)
	assert.Equal(t, []string{"user"}, f.senders(t))
}

func TestRun_RequestStopEndsAtNextCheck(t *testing.T) {
	var orch *Orchestrator
	agent := participant.AgentFunc(func(ctx context.Context, _ []types.Message) (types.Message, error) {
		orch.RequestStop()
		return types.Message{Content: "partial findings"}, nil
	})
	f := newFixture(t, []participant.Participant{{Name: "policy_agent", Agent: agent}},
		&sequence{names: []string{"policy_agent"}}, 30)
	orch = f.orch

	res, err := f.orch.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, termination.ReasonExternalRequest, res.Reason)
	assert.Equal(t, 1, res.Turns, "the in-flight turn completes")

	// the flag is re-armed for the next run
	res, err = f.orch.Run(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Turns)
}

func TestRun_SelectionFailure(t *testing.T) {
	f := newFixture(t, []participant.Participant{{Name: "intake_agent", Agent: says("x")}},
		&sequence{err: selector.ErrNoCandidates}, 30)

	res, err := f.orch.Run(context.Background(), "task")
	require.Error(t, err)
	assert.ErrorIs(t, err, selector.ErrNoCandidates)
	require.NotNil(t, res)
	assert.Equal(t, termination.ReasonSelectionFailure, res.Reason)
	assert.Equal(t, StateTerminated, f.orch.State())
	assert.Equal(t, []string{"user"}, f.senders(t), "transcript preserved")
}

func TestRun_GenerationUnavailable(t *testing.T) {
	boom := types.NewError(types.ErrGenerationUnavailable, "provider down")
	f := newFixture(t, []participant.Participant{
		{Name: "intake_agent", Agent: says("Structured.")},
		{Name: "finance_agent", Agent: failing(boom)},
	}, &sequence{names: []string{"intake_agent", "finance_agent"}}, 30)

	res, err := f.orch.Run(context.Background(), "task")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrGenerationUnavailable))
	assert.Equal(t, termination.ReasonGenerationUnavailable, res.Reason)
	assert.Equal(t, []string{"user", "intake_agent"}, f.senders(t))

	// the orchestrator can be re-entered after a failure
	_, err = f.orch.Run(context.Background(), "retry")
	require.Error(t, err)
}

func TestRun_PlainAgentErrorBecomesGenerationUnavailable(t *testing.T) {
	f := newFixture(t, []participant.Participant{{Name: "intake_agent", Agent: failing(errors.New("socket closed"))}},
		&sequence{names: []string{"intake_agent"}}, 30)

	_, err := f.orch.Run(context.Background(), "task")
	assert.True(t, types.IsErrorCode(err, types.ErrGenerationUnavailable))
}

func TestRun_SelectorGenerationErrorReason(t *testing.T) {
	sel := &sequence{err: types.NewError(types.ErrGenerationTimeout, "selector timed out")}
	f := newFixture(t, []participant.Participant{{Name: "intake_agent", Agent: says("x")}}, sel, 30)

	res, err := f.orch.Run(context.Background(), "task")
	require.Error(t, err)
	assert.Equal(t, termination.ReasonGenerationUnavailable, res.Reason)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t, []participant.Participant{human()}, &sequence{names: []string{"human_proxy_agent"}}, 30)
	errs := make(chan error, 1)
	f.boundary.RegisterHandler(func(ctx context.Context, req hitl.Request) error {
		_, err := f.orch.Run(context.Background(), "second")
		errs <- err
		return f.boundary.Respond(req.ID, "exit")
	})

	_, err := f.orch.Run(context.Background(), "first")
	require.NoError(t, err)
	assert.True(t, types.IsErrorCode(<-errs, types.ErrInvalidTransition))
}

func TestRun_RejectsEmptyTask(t *testing.T) {
	f := newFixture(t, []participant.Participant{{Name: "intake_agent", Agent: says("x")}}, &sequence{names: []string{"intake_agent"}}, 30)
	_, err := f.orch.Run(context.Background(), "  ")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput))
}

func TestRun_KeywordInTaskStopsBeforeSelection(t *testing.T) {
	sel := &sequence{err: errors.New("must not be called")}
	f := newFixture(t, []participant.Participant{{Name: "intake_agent", Agent: says("x")}}, sel, 30)

	res, err := f.orch.Run(context.Background(), "TERMINATE")
	require.NoError(t, err)
	assert.Equal(t, termination.ReasonKeyword, res.Reason)
	assert.Zero(t, res.Turns)
}

func TestRun_ToolInvocationsAppended(t *testing.T) {
	agent := participant.AgentFunc(func(ctx context.Context, _ []types.Message) (types.Message, error) {
		return types.Message{
			Content: "Budget checked. APPROVED",
			ToolInvocations: []types.ToolInvocation{
				{CallID: "c1", Tool: "check_budget", Result: []byte(`{"sufficient":true}`)},
				{CallID: "c2", Tool: "lookup_vendor", Error: "tool lookup_vendor is not permitted for this participant"},
			},
		}, nil
	})
	f := newFixture(t, []participant.Participant{{Name: "finance_agent", Agent: agent}}, &sequence{names: []string{"finance_agent"}}, 30)

	res, err := f.orch.Run(context.Background(), "task")
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.Len(t, res.Messages[1].ToolInvocations, 2)
	assert.True(t, res.Messages[1].ToolInvocations[1].Failed())
}

func TestRun_ObserverSeesEveryAppend(t *testing.T) {
	f := newFixture(t, []participant.Participant{
		{Name: "intake_agent", Agent: says("ok")},
		{Name: "reviewer_agent", Agent: says("REJECTED")},
	}, &sequence{names: []string{"intake_agent", "reviewer_agent"}}, 30)

	_, err := f.orch.Run(context.Background(), "task")
	require.NoError(t, err)

	var appended, selected, finished int
	for _, ev := range f.rec.events {
		switch ev.Type {
		case EventMessageAppended:
			appended++
			require.NotNil(t, ev.Message)
		case EventSpeakerSelected:
			selected++
		case EventRunFinished:
			finished++
			require.NotNil(t, ev.Result)
		}
	}
	assert.Equal(t, 3, appended)
	assert.Equal(t, 2, selected)
	assert.Equal(t, 1, finished)
}

func TestRun_EndToEndWithModelSelector(t *testing.T) {
	picks := []string{"intake_agent", "reviewer_agent"}
	var mu sync.Mutex
	provider := llm.ProviderFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		name := picks[0]
		picks = picks[1:]
		return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: llm.Message{Content: name}}}}, nil
	})
	sel := selector.New(selector.DefaultConfig(), provider, nil)
	f := newFixture(t, []participant.Participant{
		{Name: "intake_agent", Agent: says("Request structured.")},
		{Name: "reviewer_agent", Agent: says("All checks pass. APPROVED")},
	}, sel, 30)

	res, err := f.orch.Run(context.Background(), "We need to procure 50 MacBooks")
	require.NoError(t, err)
	assert.Equal(t, termination.ReasonKeyword, res.Reason)
	assert.Equal(t, []string{"user", "intake_agent", "reviewer_agent"}, f.senders(t))
}

func TestRun_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, []participant.Participant{{Name: "reviewer_agent", Agent: says("APPROVED")}},
		&sequence{names: []string{"reviewer_agent"}}, 30, WithTracer(tp.Tracer("test")))

	_, err := f.orch.Run(context.Background(), "task")
	require.NoError(t, err)

	names := map[string]bool{}
	var reason string
	for _, s := range sr.Ended() {
		names[s.Name()] = true
		if s.Name() == "conversation.run" {
			for _, kv := range s.Attributes() {
				if kv.Key == "termination.reason" {
					reason = kv.Value.AsString()
				}
			}
		}
	}
	assert.True(t, names["conversation.run"])
	assert.True(t, names["conversation.turn"])
	assert.Equal(t, string(termination.ReasonKeyword), reason)
}

func TestNew_Validation(t *testing.T) {
	reg, err := participant.NewRegistry(human())
	require.NoError(t, err)
	eval := termination.New(termination.Config{})

	_, err = New(reg, transcript.NewMemoryStore(), eval, &sequence{names: []string{"x"}}, nil, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput), "human participant without boundary")

	_, err = New(nil, transcript.NewMemoryStore(), eval, &sequence{}, nil, nil)
	assert.Error(t, err)

	_, err = New(reg, transcript.NewMemoryStore(), eval, &sequence{names: []string{"x"}}, hitl.NewBoundary(nil, 0, nil), nil)
	require.NoError(t, err)
	assert.True(t, reg.Sealed())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateTerminated, StateRunning))
	assert.True(t, CanTransition(StateAwaitingHuman, StateTerminated))
	assert.False(t, CanTransition(StateTerminated, StateAwaitingHuman))
	assert.False(t, CanTransition(StateAwaitingHuman, StateAwaitingHuman))
}
