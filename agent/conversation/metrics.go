package conversation

import "time"

// Metrics receives orchestrator measurements. internal/metrics.Collector implements it.
type Metrics interface {
	RecordRun(reason string, turns int, duration time.Duration)
	RecordTurn(participant, kind, status string, duration time.Duration)
	RecordSelection(method string)
	RecordStateTransition(from, to string)
	RecordHumanWait(outcome string, duration time.Duration)
	RecordToolInvocation(tool string, failed bool)
}

type nopMetrics struct{}

func (nopMetrics) RecordRun(string, int, time.Duration) {}
func (nopMetrics) RecordTurn(string, string, string, time.Duration) {}
func (nopMetrics) RecordSelection(string) {}
func (nopMetrics) RecordStateTransition(string, string) {}
func (nopMetrics) RecordHumanWait(string, time.Duration) {}
func (nopMetrics) RecordToolInvocation(string, bool) {}
