package hitl

import (
	"context"
	"sort"
	"sync"

	"github.com/lachopopov/multiagent-system-demo/types"
)

// Store 定义了人工输入请求的存储接口，用于审计与查询历史请求
type Store interface {
	Save(ctx context.Context, req Request) error
	Load(ctx context.Context, id string) (Request, error)
	List(ctx context.Context, runID string, status Status) ([]Request, error)
	Update(ctx context.Context, req Request) error
}

// MemoryStore 在内存中保存请求
type MemoryStore struct {
	requests map[string]Request
	mu       sync.RWMutex
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]Request)}
}

func (s *MemoryStore) Save(ctx context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, id string) (Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return Request{}, types.Errorf(types.ErrInvalidInput, "human request not found: %s", id)
	}
	return req, nil
}

// List 按创建时间排序返回匹配的请求，空参数表示不过滤
func (s *MemoryStore) List(ctx context.Context, runID string, status Status) ([]Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Request
	for _, req := range s.requests {
		if (runID == "" || req.RunID == runID) && (status == "" || req.Status == status) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}
