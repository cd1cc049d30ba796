package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lachopopov/multiagent-system-demo/types"
	"gorm.io/gorm"
)

// MessageRecord is the row layout of the transcript_messages table.
type MessageRecord struct {
	ID              string    `gorm:"primaryKey;size:64"`
	ConversationID  string    `gorm:"size:128;not null;uniqueIndex:idx_transcript_conv_seq,priority:1"`
	Seq             int64     `gorm:"not null;uniqueIndex:idx_transcript_conv_seq,priority:2"`
	RunID           string    `gorm:"size:64"`
	Sender          string    `gorm:"size:128;not null"`
	Role            string    `gorm:"size:32;not null"`
	Content         string    `gorm:"type:text"`
	ToolInvocations string    `gorm:"type:text"`
	Metadata        string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"not null"`
}

// TableName 指定表名
func (MessageRecord) TableName() string {
	return "transcript_messages"
}

func toRecord(conversationID string, m types.Message) (MessageRecord, error) {
	rec := MessageRecord{
		ID:             m.ID,
		ConversationID: conversationID,
		Seq:            m.Seq,
		RunID:          m.RunID,
		Sender:         m.Sender,
		Role:           string(m.Role),
		Content:        m.Content,
		CreatedAt:      m.Timestamp,
	}
	if len(m.ToolInvocations) > 0 {
		b, err := json.Marshal(m.ToolInvocations)
		if err != nil {
			return MessageRecord{}, err
		}
		rec.ToolInvocations = string(b)
	}
	if len(m.Metadata) > 0 {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return MessageRecord{}, err
		}
		rec.Metadata = string(b)
	}
	return rec, nil
}

func (r MessageRecord) message() (types.Message, error) {
	m := types.Message{
		ID:        r.ID,
		Seq:       r.Seq,
		RunID:     r.RunID,
		Sender:    r.Sender,
		Role:      types.Role(r.Role),
		Content:   r.Content,
		Timestamp: r.CreatedAt,
	}
	if r.ToolInvocations != "" {
		if err := json.Unmarshal([]byte(r.ToolInvocations), &m.ToolInvocations); err != nil {
			return types.Message{}, err
		}
	}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &m.Metadata); err != nil {
			return types.Message{}, err
		}
	}
	return m, nil
}

// SQLStore keeps the transcript in a relational table through gorm.
// The (conversation_id, seq) unique index rejects concurrent writers that race on a sequence number.
type SQLStore struct {
	db             *gorm.DB
	conversationID string
	mu             sync.Mutex
	closed         bool
	now            func() time.Time
}

// SQLOption configures an SQLStore.
type SQLOption func(*SQLStore)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) { s.now = now }
}

// NewSQLStore returns a store for conversationID. The table must exist; see AutoMigrate.
func NewSQLStore(db *gorm.DB, conversationID string, opts ...SQLOption) *SQLStore {
	if conversationID == "" {
		conversationID = DefaultConversationID
	}
	s := &SQLStore{db: db, conversationID: conversationID, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AutoMigrate creates the transcript table with gorm. Production deployments use golang-migrate instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&MessageRecord{})
}

func (s *SQLStore) Append(ctx context.Context, msg types.Message) (types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.Message{}, ErrStoreClosed
	}

	var stored types.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&MessageRecord{}).
			Where("conversation_id = ?", s.conversationID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		m, err := stamp(msg, maxSeq+1, s.now())
		if err != nil {
			return err
		}
		// 数据库时间精度不一，统一截到微秒
		m.Timestamp = m.Timestamp.UTC().Truncate(time.Microsecond)
		rec, err := toRecord(s.conversationID, m)
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		stored = m
		return nil
	})
	if err != nil {
		return types.Message{}, err
	}
	return stored, nil
}

func (s *SQLStore) Snapshot(ctx context.Context) (Snapshot, error) {
	if s.isClosed() {
		return Snapshot{}, ErrStoreClosed
	}
	var recs []MessageRecord
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", s.conversationID).
		Order("seq ASC").
		Find(&recs).Error; err != nil {
		return Snapshot{}, err
	}
	msgs := make([]types.Message, 0, len(recs))
	for _, r := range recs {
		m, err := r.message()
		if err != nil {
			return Snapshot{}, fmt.Errorf("decode transcript row %d: %w", r.Seq, err)
		}
		msgs = append(msgs, m)
	}
	if err := verifySequence(msgs); err != nil {
		return Snapshot{}, err
	}
	return snapshotOf(msgs), nil
}

func (s *SQLStore) Len(ctx context.Context) (int, error) {
	if s.isClosed() {
		return 0, ErrStoreClosed
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&MessageRecord{}).
		Where("conversation_id = ?", s.conversationID).
		Count(&n).Error
	return int(n), err
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close marks the store closed. The *gorm.DB belongs to the caller.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *SQLStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
