package channel

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultInboundWorkers = 4
	defaultInboundQueue   = 64
)

// ErrManagerStopped is returned by Dispatch after Shutdown.
var ErrManagerStopped = errors.New("channel manager stopped")

// Middleware wraps an InboundHandler to add cross-cutting behavior.
type Middleware func(next InboundHandler) InboundHandler

// LoggingMiddleware logs every inbound message with its handling latency.
func LoggingMiddleware(log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "inbound"))
	return func(next InboundHandler) InboundHandler {
		return func(ctx context.Context, msg InboundMessage) error {
			start := time.Now()
			err := next(ctx, msg)
			log.Debug("inbound handled",
				slog.String("channel", msg.Channel.String()),
				slog.String("sender", msg.Sender.SubjectID),
				slog.Int("attachments", len(msg.Message.Attachments)),
				slog.Duration("latency", time.Since(start)),
				slog.Bool("failed", err != nil),
			)
			return err
		}
	}
}

type inboundTask struct {
	msg InboundMessage
}

// Manager connects a receiver and feeds its messages to a handler through a
// sharded worker pool. Messages from one sender always land on the same
// worker, so they are handled strictly in arrival order while different
// senders proceed in parallel.
type Manager struct {
	receiver    Receiver
	handler     InboundHandler
	logger      *slog.Logger
	middlewares []Middleware

	queues        []chan inboundTask
	wg            sync.WaitGroup
	startOnce     sync.Once
	inboundCtx    context.Context
	inboundCancel context.CancelFunc

	mu   sync.Mutex
	conn Connection
}

// NewManager creates a Manager. Non-positive workers or queueSize fall back to defaults.
func NewManager(log *slog.Logger, receiver Receiver, handler InboundHandler, workers, queueSize int) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if workers <= 0 {
		workers = defaultInboundWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultInboundQueue
	}
	queues := make([]chan inboundTask, workers)
	for i := range queues {
		queues[i] = make(chan inboundTask, queueSize)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		receiver:      receiver,
		handler:       handler,
		logger:        log.With(slog.String("component", "channel")),
		queues:        queues,
		inboundCtx:    ctx,
		inboundCancel: cancel,
	}
}

// Use appends middleware to the inbound processing chain. Call before Start.
func (m *Manager) Use(mw ...Middleware) {
	m.middlewares = append(m.middlewares, mw...)
}

// Start launches the worker pool and, when a receiver is set, connects it.
func (m *Manager) Start(ctx context.Context) error {
	m.startOnce.Do(m.startInboundWorkers)
	if m.receiver == nil {
		return nil
	}
	conn, err := m.receiver.Connect(ctx, m.Dispatch)
	if err != nil {
		return fmt.Errorf("connect channel: %w", err)
	}
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	m.logger.Info("manager start", slog.String("channel", conn.ChannelType().String()), slog.Int("workers", len(m.queues)))
	return nil
}

func (m *Manager) startInboundWorkers() {
	handler := m.handler
	for i := len(m.middlewares) - 1; i >= 0; i-- {
		handler = m.middlewares[i](handler)
	}
	for i, q := range m.queues {
		m.wg.Add(1)
		go m.runWorker(i, q, handler)
	}
}

func (m *Manager) runWorker(id int, q <-chan inboundTask, handler InboundHandler) {
	defer m.wg.Done()
	for {
		select {
		case <-m.inboundCtx.Done():
			return
		case task := <-q:
			m.handle(id, handler, task)
		}
	}
}

func (m *Manager) handle(worker int, handler InboundHandler, task inboundTask) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("inbound handler panic",
				slog.Int("worker", worker),
				slog.String("sender", task.msg.Sender.SubjectID),
				slog.Any("panic", r),
			)
		}
	}()
	if handler == nil {
		return
	}
	if err := handler(m.inboundCtx, task.msg); err != nil {
		m.logger.Error("handle inbound failed",
			slog.Int("worker", worker),
			slog.String("sender", task.msg.Sender.SubjectID),
			slog.Any("error", err),
		)
	}
}

// Dispatch queues msg on the worker owning its sender. It blocks while that
// worker's queue is full.
func (m *Manager) Dispatch(ctx context.Context, msg InboundMessage) error {
	q := m.queues[shardFor(msg.Sender.SubjectID, len(m.queues))]
	select {
	case <-m.inboundCtx.Done():
		return ErrManagerStopped
	default:
	}
	select {
	case q <- inboundTask{msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.inboundCtx.Done():
		return ErrManagerStopped
	}
}

// Shutdown stops the connection, then the workers. In-flight handlers see a
// cancelled context.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	var stopErr error
	if conn != nil {
		if err := conn.Stop(ctx); err != nil && !errors.Is(err, ErrStopNotSupported) {
			stopErr = fmt.Errorf("stop connection: %w", err)
		}
	}
	m.inboundCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("manager stop")
	case <-ctx.Done():
		return errors.Join(stopErr, ctx.Err())
	}
	return stopErr
}

func shardFor(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
