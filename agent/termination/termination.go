// Package termination decides, from a transcript snapshot, whether a run must stop.
//
// Conditions are combined with OR. When several fire on the same snapshot the
// reported reason is the first firing condition in evaluation order.
package termination

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/lachopopov/multiagent-system-demo/agent/transcript"
)

// Reason names why a run stopped.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonKeyword               Reason = "explicit-keyword-match"
	ReasonMessageCountExceeded  Reason = "message-count-exceeded"
	ReasonExternalRequest       Reason = "external-request"
	ReasonSelectionFailure      Reason = "selection-failure"
	ReasonGenerationUnavailable Reason = "generation-unavailable"
	ReasonStoreFailure          Reason = "store-failure"
)

// DefaultKeywords are the terminal keywords of the procurement workflow.
var DefaultKeywords = []string{"TERMINATE", "FINAL_DECISION", "APPROVED", "REJECTED"}

// DefaultMaxMessages caps the transcript length of a run.
const DefaultMaxMessages = 30

// Signal is the evaluator verdict. The zero value means continue.
type Signal struct {
	Stop   bool
	Reason Reason
	Detail string
}

// Continue is the non-stopping signal.
var Continue = Signal{}

// StopWith returns a stopping signal.
func StopWith(reason Reason, detail string) Signal {
	return Signal{Stop: true, Reason: reason, Detail: detail}
}

func (s Signal) String() string {
	if !s.Stop {
		return "continue"
	}
	if s.Detail == "" {
		return "stop(" + string(s.Reason) + ")"
	}
	return fmt.Sprintf("stop(%s: %s)", s.Reason, s.Detail)
}

// Condition is one termination check. Implementations are pure functions of the snapshot.
type Condition interface {
	Check(snap transcript.Snapshot) Signal
}

// ConditionFunc adapts a function into a Condition.
type ConditionFunc func(snap transcript.Snapshot) Signal

func (f ConditionFunc) Check(snap transcript.Snapshot) Signal { return f(snap) }

// KeywordCondition fires when any message in the snapshot contains a keyword.
// Matching is a case-sensitive substring match. The earliest matching message
// is reported, so an extended snapshot keeps the same signal.
type KeywordCondition struct {
	keywords []string
}

// NewKeywordCondition ignores blank keywords.
func NewKeywordCondition(keywords ...string) *KeywordCondition {
	kc := &KeywordCondition{}
	for _, k := range keywords {
		if strings.TrimSpace(k) != "" {
			kc.keywords = append(kc.keywords, k)
		}
	}
	return kc
}

// Keywords returns the configured keywords.
func (c *KeywordCondition) Keywords() []string {
	return append([]string(nil), c.keywords...)
}

func (c *KeywordCondition) Check(snap transcript.Snapshot) Signal {
	for i := 0; i < snap.Len(); i++ {
		msg := snap.At(i)
		for _, k := range c.keywords {
			if strings.Contains(msg.Content, k) {
				return StopWith(ReasonKeyword, fmt.Sprintf("%s said %s", msg.Sender, k))
			}
		}
	}
	return Continue
}

// MaxMessageCondition fires once the snapshot holds at least Max messages.
type MaxMessageCondition struct {
	Max int
}

func (c MaxMessageCondition) Check(snap transcript.Snapshot) Signal {
	if c.Max > 0 && snap.Len() >= c.Max {
		return StopWith(ReasonMessageCountExceeded, fmt.Sprintf("%d messages, limit %d", snap.Len(), c.Max))
	}
	return Continue
}

// ExternalCondition fires after Request until Reset.
type ExternalCondition struct {
	requested atomic.Bool
}

// Request asks the run to stop at its next evaluation point.
func (c *ExternalCondition) Request() { c.requested.Store(true) }

// Reset re-arms the condition for a new run.
func (c *ExternalCondition) Reset() { c.requested.Store(false) }

// Requested reports whether a stop was requested.
func (c *ExternalCondition) Requested() bool { return c.requested.Load() }

func (c *ExternalCondition) Check(snap transcript.Snapshot) Signal {
	if c.requested.Load() {
		return StopWith(ReasonExternalRequest, "stop requested")
	}
	return Continue
}

// Evaluator combines conditions with OR.
type Evaluator struct {
	conditions []Condition
	external   *ExternalCondition
}

// Config holds the evaluator settings.
type Config struct {
	Keywords    []string
	MaxMessages int
}

// New builds the standard evaluator: keyword, then message count, then external request.
func New(cfg Config) *Evaluator {
	ext := &ExternalCondition{}
	return &Evaluator{
		conditions: []Condition{
			NewKeywordCondition(cfg.Keywords...),
			MaxMessageCondition{Max: cfg.MaxMessages},
			ext,
		},
		external: ext,
	}
}

// NewWith builds an evaluator over custom conditions plus the external-request condition.
func NewWith(conds ...Condition) *Evaluator {
	ext := &ExternalCondition{}
	return &Evaluator{
		conditions: append(append([]Condition(nil), conds...), ext),
		external:   ext,
	}
}

// Evaluate reports the first firing condition.
func (e *Evaluator) Evaluate(snap transcript.Snapshot) Signal {
	for _, c := range e.conditions {
		if s := c.Check(snap); s.Stop {
			return s
		}
	}
	return Continue
}

// External exposes the external-request condition to drivers.
func (e *Evaluator) External() *ExternalCondition {
	return e.external
}
