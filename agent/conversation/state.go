package conversation

import (
	"time"

	"github.com/lachopopov/multiagent-system-demo/agent/termination"
	"github.com/lachopopov/multiagent-system-demo/types"
)

// RunState is the orchestrator lifecycle state.
type RunState string

const (
	StateRunning       RunState = "RUNNING"
	StateAwaitingHuman RunState = "AWAITING_HUMAN"
	StateTerminated    RunState = "TERMINATED"
)

// 合法的状态转换
var transitions = map[RunState][]RunState{
	StateTerminated:    {StateRunning},
	StateRunning:       {StateAwaitingHuman, StateTerminated},
	StateAwaitingHuman: {StateRunning, StateTerminated},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to RunState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RunResult summarizes one finished run.
type RunResult struct {
	RunID    string             `json:"run_id"`
	Reason   termination.Reason `json:"reason"`
	Detail   string             `json:"detail,omitempty"`
	StartSeq int64              `json:"start_seq"`
	EndSeq   int64              `json:"end_seq"`
	Turns    int                `json:"turns"`
	Duration time.Duration      `json:"duration"`
	// Messages is the run window, task message included.
	Messages []types.Message `json:"messages"`
}

// EventType classifies observer events.
type EventType string

const (
	EventStateChanged    EventType = "state_changed"
	EventSpeakerSelected EventType = "speaker_selected"
	EventMessageAppended EventType = "message_appended"
	EventRunFinished     EventType = "run_finished"
)

// Event is delivered to observers synchronously from the run loop.
type Event struct {
	Type      EventType
	RunID     string
	State     RunState
	Speaker   string
	Method    string
	Message   *types.Message
	Result    *RunResult
	Timestamp time.Time
}

// Observer receives run events. It must not block for long.
type Observer func(Event)
