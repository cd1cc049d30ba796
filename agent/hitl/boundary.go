package hitl

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lachopopov/multiagent-system-demo/types"
)

// Status 表示输入请求的状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusAnswered  Status = "answered"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

var (
	ErrHumanTimeout   = types.NewError(types.ErrHumanTimeout, "human input timed out")
	ErrHumanCancelled = types.NewError(types.ErrHumanCancelled, "human input cancelled")
	ErrNotPending     = types.NewError(types.ErrInvalidInput, "request is not pending")
)

// Request 代表一次等待人工输入的请求
type Request struct {
	ID          string        `json:"id"`
	RunID       string        `json:"run_id,omitempty"`
	Participant string        `json:"participant"`
	Prompt      string        `json:"prompt"`
	Status      Status        `json:"status"`
	Response    string        `json:"response,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// Handler 在请求打开时被调用，通常用于把请求转交给响应方。
// 请求得到答复、超时或被取消后 ctx 随即取消，响应方不需要自己计时。
type Handler func(ctx context.Context, req Request) error

type outcome struct {
	text string
	err  error
}

type pendingRequest struct {
	req    Request
	result chan outcome
}

// Boundary 管理人工输入请求
type Boundary struct {
	store    Store
	timeout  time.Duration
	logger   *zap.Logger
	handlers []Handler
	pending  map[string]*pendingRequest
	mu       sync.RWMutex
}

// NewBoundary 创建人工输入边界。timeout 为零表示不超时；store 为 nil 时使用内存存储。
func NewBoundary(store Store, timeout time.Duration, logger *zap.Logger) *Boundary {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Boundary{
		store:   store,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "hitl")),
		pending: make(map[string]*pendingRequest),
	}
}

// RegisterHandler 注册请求打开时的通知处理器
func (b *Boundary) RegisterHandler(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Await 打开请求并阻塞直到得到答复、超时或取消。
// 返回的文本未经修剪，是否结束会话由调用方通过 IsExitInput 判断。
func (b *Boundary) Await(ctx context.Context, req Request) (string, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Timeout == 0 {
		req.Timeout = b.timeout
	}
	req.Status = StatusPending
	req.CreatedAt = time.Now()
	req.ResolvedAt = nil
	req.Response = ""

	if err := b.store.Save(ctx, req); err != nil {
		return "", types.NewError(types.ErrInternalError, "failed to save human request").WithCause(err)
	}

	p := &pendingRequest{req: req, result: make(chan outcome, 1)}
	b.mu.Lock()
	b.pending[req.ID] = p
	b.mu.Unlock()

	b.logger.Info("等待人工输入",
		zap.String("id", req.ID),
		zap.String("participant", req.Participant),
		zap.Duration("timeout", req.Timeout),
	)
	hctx, cancelHandlers := context.WithCancel(ctx)
	defer cancelHandlers()
	b.notifyHandlers(hctx, req)

	var timeoutCh <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case out := <-p.result:
		return out.text, out.err
	case <-timeoutCh:
		return b.expire(req.ID, StatusTimeout, ErrHumanTimeout, p)
	case <-ctx.Done():
		cause := types.NewError(types.ErrHumanCancelled, "human input cancelled").WithCause(ctx.Err())
		return b.expire(req.ID, StatusCancelled, cause, p)
	}
}

// expire 结束仍在等待的请求；若响应方抢先完成，结果通道里已是对方的结果。
func (b *Boundary) expire(id string, status Status, err error, p *pendingRequest) (string, error) {
	b.finish(id, status, "", err)
	out := <-p.result
	return out.text, out.err
}

// Respond 提交人工输入
func (b *Boundary) Respond(id, text string) error {
	if !b.finish(id, StatusAnswered, text, nil) {
		return types.Errorf(types.ErrInvalidInput, "human request %s is not pending", id).WithCause(ErrNotPending)
	}
	b.logger.Info("收到人工输入", zap.String("id", id), zap.Int("length", len(text)))
	return nil
}

// Cancel 取消等待中的请求
func (b *Boundary) Cancel(id string) error {
	if !b.finish(id, StatusCancelled, "", ErrHumanCancelled) {
		return types.Errorf(types.ErrInvalidInput, "human request %s is not pending", id).WithCause(ErrNotPending)
	}
	b.logger.Info("人工输入请求已取消", zap.String("id", id))
	return nil
}

// CancelAll 取消所有等待中的请求，返回取消数量
func (b *Boundary) CancelAll() int {
	n := 0
	for _, req := range b.Pending("") {
		if b.Cancel(req.ID) == nil {
			n++
		}
	}
	return n
}

// finish 原子地移除等待请求并投递结果。只有第一个调用者成功。
func (b *Boundary) finish(id string, status Status, text string, err error) bool {
	b.mu.Lock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}

	now := time.Now()
	req := p.req
	req.Status = status
	req.Response = text
	req.ResolvedAt = &now
	if uerr := b.store.Update(context.Background(), req); uerr != nil {
		b.logger.Warn("更新人工输入请求失败", zap.String("id", id), zap.Error(uerr))
	}
	if status == StatusTimeout {
		b.logger.Warn("人工输入超时", zap.String("id", id))
	}

	p.result <- outcome{text: text, err: err}
	return true
}

// Pending 返回等待中的请求，runID 为空时返回全部
func (b *Boundary) Pending(runID string) []Request {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Request
	for _, p := range b.pending {
		if runID == "" || p.req.RunID == runID {
			out = append(out, p.req)
		}
	}
	return out
}

// Store 返回请求存储
func (b *Boundary) Store() Store {
	return b.store
}

func (b *Boundary) notifyHandlers(ctx context.Context, req Request) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, req); err != nil {
				b.logger.Error("handler error", zap.String("id", req.ID), zap.Error(err))
			}
		}(handler)
	}
}

// IsExitInput 判断输入是否表示结束：空、纯空白或 exit（不区分大小写）
func IsExitInput(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || strings.EqualFold(t, "exit")
}
