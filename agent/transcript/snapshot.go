package transcript

import "github.com/lachopopov/multiagent-system-demo/types"

// Snapshot is an immutable ordered view of the transcript.
// The zero value is an empty transcript.
type Snapshot struct {
	msgs []types.Message
}

// NewSnapshot builds a snapshot over a copy of msgs.
func NewSnapshot(msgs []types.Message) Snapshot {
	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return Snapshot{msgs: out}
}

// snapshotOf wraps msgs without copying. Callers guarantee msgs are never mutated.
func snapshotOf(msgs []types.Message) Snapshot {
	return Snapshot{msgs: msgs[:len(msgs):len(msgs)]}
}

// Len returns the number of messages.
func (s Snapshot) Len() int { return len(s.msgs) }

// Empty reports whether the snapshot has no messages.
func (s Snapshot) Empty() bool { return len(s.msgs) == 0 }

// At returns a copy of the i-th message.
func (s Snapshot) At(i int) types.Message { return s.msgs[i].Clone() }

// Last returns the most recent message.
func (s Snapshot) Last() (types.Message, bool) {
	if len(s.msgs) == 0 {
		return types.Message{}, false
	}
	return s.msgs[len(s.msgs)-1].Clone(), true
}

// LastSeq returns the sequence number of the most recent message, 0 when empty.
func (s Snapshot) LastSeq() int64 {
	if len(s.msgs) == 0 {
		return 0
	}
	return s.msgs[len(s.msgs)-1].Seq
}

// Messages returns a deep copy of all messages.
func (s Snapshot) Messages() []types.Message {
	out := make([]types.Message, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Clone()
	}
	return out
}

// Since returns the messages whose seq is greater than seq.
func (s Snapshot) Since(seq int64) Snapshot {
	for i, m := range s.msgs {
		if m.Seq > seq {
			return snapshotOf(s.msgs[i:])
		}
	}
	return Snapshot{}
}

// Tail returns the last n messages. n <= 0 returns the whole snapshot.
func (s Snapshot) Tail(n int) Snapshot {
	if n <= 0 || n >= len(s.msgs) {
		return s
	}
	return snapshotOf(s.msgs[len(s.msgs)-n:])
}

// LastFrom returns the most recent message matching keep.
func (s Snapshot) LastFrom(keep func(types.Message) bool) (types.Message, bool) {
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if keep(s.msgs[i]) {
			return s.msgs[i].Clone(), true
		}
	}
	return types.Message{}, false
}

// HasSpoken reports whether sender authored any message.
func (s Snapshot) HasSpoken(sender string) bool {
	_, ok := s.LastFrom(func(m types.Message) bool { return m.Sender == sender })
	return ok
}
