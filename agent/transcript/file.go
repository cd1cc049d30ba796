package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lachopopov/multiagent-system-demo/types"
)

// FileStore persists the transcript as JSON Lines, one message per line.
// Suitable for single-node deployments and for replaying a session later.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	file   *os.File
	msgs   []types.Message
	closed bool
	now    func() time.Time
}

// NewFileStore opens (or creates) the transcript file at path and loads existing messages.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, types.NewError(types.ErrInvalidInput, "transcript file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	msgs, err := readJSONL(path)
	if err != nil {
		return nil, err
	}
	if err := verifySequence(msgs); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}
	return &FileStore{
		path: path,
		file: f,
		msgs: msgs,
		now:  time.Now,
	}, nil
}

func readJSONL(path string) ([]types.Message, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var msgs []types.Message
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var m types.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s line %d: %w", path, line, err)
		}
		msgs = append(msgs, m)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Append(ctx context.Context, msg types.Message) (types.Message, error) {
	if err := ctx.Err(); err != nil {
		return types.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.Message{}, ErrStoreClosed
	}

	m, err := stamp(msg, int64(len(s.msgs)+1), s.now())
	if err != nil {
		return types.Message{}, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return types.Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.file.Write(data); err != nil {
		return types.Message{}, fmt.Errorf("failed to append message: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return types.Message{}, fmt.Errorf("failed to sync transcript: %w", err)
	}

	s.msgs = append(s.msgs, m)
	return m.Clone(), nil
}

func (s *FileStore) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Snapshot{}, ErrStoreClosed
	}
	return snapshotOf(s.msgs), nil
}

func (s *FileStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	return len(s.msgs), nil
}

func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.path)
	return err
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
