package transcript

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/lachopopov/multiagent-system-demo/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"pgregory.net/rapid"
)

type backend struct {
	name       string
	open       func(t *testing.T) Store
	concurrent bool
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// :memory: databases are per connection
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func openMiniredis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func backends() []backend {
	return []backend{
		{
			name:       "memory",
			open:       func(t *testing.T) Store { return NewMemoryStore() },
			concurrent: true,
		},
		{
			name: "file",
			open: func(t *testing.T) Store {
				s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "transcript.jsonl"))
				require.NoError(t, err)
				return s
			},
			concurrent: true,
		},
		{
			name: "redis",
			open: func(t *testing.T) Store {
				return NewRedisStoreWithClient(openMiniredis(t), "test:", "conv-1")
			},
		},
		{
			name:       "sql",
			open:       func(t *testing.T) Store { return NewSQLStore(openSQLite(t), "conv-1") },
			concurrent: true,
		},
	}
}

func msg(sender, content string) types.Message {
	return types.NewMessage(sender, types.RoleAssistant, content)
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			t.Run("append assigns gapless seq", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				for i := 1; i <= 5; i++ {
					m, err := s.Append(ctx, msg("intake_agent", fmt.Sprintf("step %d", i)))
					require.NoError(t, err)
					assert.Equal(t, int64(i), m.Seq)
					assert.NotEmpty(t, m.ID)
					assert.False(t, m.Timestamp.IsZero())
				}

				n, err := s.Len(ctx)
				require.NoError(t, err)
				assert.Equal(t, 5, n)

				snap, err := s.Snapshot(ctx)
				require.NoError(t, err)
				require.Equal(t, 5, snap.Len())
				for i, m := range snap.Messages() {
					assert.Equal(t, int64(i+1), m.Seq)
					assert.Equal(t, fmt.Sprintf("step %d", i+1), m.Content)
				}
				assert.NoError(t, s.Ping(ctx))
			})

			t.Run("tool invocations round trip", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				in := msg("finance_agent", "budget checked")
				in.RunID = "run-1"
				in.Metadata = map[string]string{"model": "offline"}
				in.ToolInvocations = []types.ToolInvocation{
					{CallID: "c1", Tool: "check_budget", Arguments: []byte(`{"amount":1}`), Result: []byte(`{"sufficient":true}`)},
					{CallID: "c2", Tool: "forecast_spend", Error: "bad args"},
				}
				_, err := s.Append(ctx, in)
				require.NoError(t, err)

				snap, err := s.Snapshot(ctx)
				require.NoError(t, err)
				got, ok := snap.Last()
				require.True(t, ok)
				assert.Equal(t, "run-1", got.RunID)
				assert.Equal(t, "offline", got.Metadata["model"])
				require.Len(t, got.ToolInvocations, 2)
				assert.JSONEq(t, `{"sufficient":true}`, string(got.ToolInvocations[0].Result))
				assert.True(t, got.ToolInvocations[1].Failed())
			})

			t.Run("snapshot is immutable", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				_, err := s.Append(ctx, msg("policy_agent", "first"))
				require.NoError(t, err)
				snap, err := s.Snapshot(ctx)
				require.NoError(t, err)

				_, err = s.Append(ctx, msg("policy_agent", "second"))
				require.NoError(t, err)
				assert.Equal(t, 1, snap.Len())

				copied := snap.Messages()
				copied[0].Content = "tampered"
				assert.Equal(t, "first", snap.At(0).Content)
			})

			t.Run("empty sender rejected", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				_, err := s.Append(ctx, types.Message{Content: "anonymous"})
				require.Error(t, err)
				assert.Equal(t, types.ErrInvalidInput, types.GetErrorCode(err))

				n, err := s.Len(ctx)
				require.NoError(t, err)
				assert.Equal(t, 0, n)
			})

			if b.concurrent {
				t.Run("concurrent appends stay gapless", func(t *testing.T) {
					s := b.open(t)
					defer s.Close()

					var wg sync.WaitGroup
					for w := 0; w < 8; w++ {
						wg.Add(1)
						go func(w int) {
							defer wg.Done()
							for i := 0; i < 10; i++ {
								_, err := s.Append(ctx, msg(fmt.Sprintf("agent_%d", w), "x"))
								assert.NoError(t, err)
							}
						}(w)
					}
					wg.Wait()

					snap, err := s.Snapshot(ctx)
					require.NoError(t, err)
					require.Equal(t, 80, snap.Len())
					assert.NoError(t, verifySequence(snap.Messages()))
				})
			}
		})
	}
}

func TestRedisStore_ConcurrentWriters(t *testing.T) {
	client := openMiniredis(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			// A separate store per writer simulates separate processes sharing the key.
			s := NewRedisStoreWithClient(client, "test:", "shared")
			for i := 0; i < 5; i++ {
				_, err := s.Append(ctx, msg(fmt.Sprintf("agent_%d", w), "x"))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	snap, err := NewRedisStoreWithClient(client, "test:", "shared").Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Len())
}

func TestRedisStore_ConversationsIsolated(t *testing.T) {
	client := openMiniredis(t)
	ctx := context.Background()

	a := NewRedisStoreWithClient(client, "", "a")
	b := NewRedisStoreWithClient(client, "", "b")
	assert.Equal(t, "procurement:transcript:a", a.Key())

	_, err := a.Append(ctx, msg("intake_agent", "a1"))
	require.NoError(t, err)
	m, err := b.Append(ctx, msg("intake_agent", "b1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Seq)
}

func TestSQLStore_ConversationsIsolated(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	a := NewSQLStore(db, "a")
	b := NewSQLStore(db, "b")
	for i := 0; i < 3; i++ {
		_, err := a.Append(ctx, msg("intake_agent", "a"))
		require.NoError(t, err)
	}
	m, err := b.Append(ctx, msg("intake_agent", "b"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Seq)

	n, err := a.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFileStore_ReloadContinuesSequence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = s.Append(ctx, msg("intake_agent", "one"))
	require.NoError(t, err)
	_, err = s.Append(ctx, msg("policy_agent", "two"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	snap, err := reopened.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())
	assert.Equal(t, "two", snap.At(1).Content)

	m, err := reopened.Append(ctx, msg("reviewer_agent", "three"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Seq)
}

func TestStore_ClosedRejectsAppend(t *testing.T) {
	ctx := context.Background()
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sql":    NewSQLStore(openSQLite(t), "closed"),
	}
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "t.jsonl"))
	require.NoError(t, err)
	stores["file"] = fs

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Close())
			_, err := s.Append(ctx, msg("intake_agent", "late"))
			assert.ErrorIs(t, err, ErrStoreClosed)
			_, err = s.Snapshot(ctx)
			assert.ErrorIs(t, err, ErrStoreClosed)
			assert.ErrorIs(t, s.Ping(ctx), ErrStoreClosed)
		})
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(Config{Type: StoreTypeFile, Path: filepath.Join(t.TempDir(), "x.jsonl")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	_ = s.Close()

	_, err = Open(Config{Type: StoreTypeSQL}, nil)
	assert.Error(t, err)

	s, err = Open(Config{Type: StoreTypeSQL}, openSQLite(t))
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)

	_, err = Open(Config{Type: "mongo"}, nil)
	assert.Error(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	cfg := DefaultConfig()
	cfg.Type = StoreTypeRedis
	cfg.Redis.Addr = mr.Addr()
	s, err = Open(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	assert.NoError(t, s.Close())
}

func TestMemoryStore_SeqGaplessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewMemoryStore()
		ctx := context.Background()
		senders := rapid.SliceOfN(rapid.SampledFrom([]string{"intake_agent", "policy_agent", "human_proxy_agent", "user"}), 1, 40).Draw(t, "senders")

		var prev int64
		for _, sender := range senders {
			m, err := s.Append(ctx, msg(sender, "x"))
			if err != nil {
				t.Fatalf("append: %v", err)
			}
			if m.Seq != prev+1 {
				t.Fatalf("seq %d after %d", m.Seq, prev)
			}
			prev = m.Seq
		}
		snap, _ := s.Snapshot(ctx)
		if err := verifySequence(snap.Messages()); err != nil {
			t.Fatal(err)
		}
	})
}
