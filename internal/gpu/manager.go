package gpu

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Channel kinds accepted by NewChannel.
const (
	ChannelNative = "native"
	ChannelHost   = "host"
)

// ChannelOptions selects and configures the channel implementation.
type ChannelOptions struct {
	// Kind is ChannelNative or ChannelHost.
	Kind   string
	Loader ModuleLoader
	Host   HostConfig
}

// NewChannel brings up the requested channel. A native module that cannot
// be loaded is an error; the host channel is never substituted for it.
func NewChannel(opts ChannelOptions, log *zap.Logger) (Channel, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch opts.Kind {
	case ChannelHost:
		return NewHostChannel(opts.Host, log), nil
	case ChannelNative, "":
		l := opts.Loader
		if l.Log == nil {
			l.Log = log
		}
		return l.Load()
	}
	return nil, errors.Wrapf(ErrInvalidArgument, "channel kind %q", opts.Kind)
}

// DeviceInfo summarizes one device as seen through a short-lived session.
type DeviceInfo struct {
	Ordinal   int          `json:"ordinal"`
	Name      string       `json:"name"`
	Precision string       `json:"precision"`
	Memory    DeviceMemory `json:"memory"`
}

// Manager owns a channel and the sessions opened on it. Every session it
// opens draws ghost handles from one shared space.
type Manager struct {
	ch    Channel
	space *HandleSpace

	mu       sync.RWMutex
	sessions map[string]func() error
	closed   bool

	log *zap.Logger
}

// NewManager wraps ch with dispatch instrumentation.
func NewManager(ch Channel, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		ch:       InstrumentChannel(ch),
		space:    NewHandleSpace(),
		sessions: make(map[string]func() error),
		log:      log,
	}
}

// Channel returns the instrumented channel.
func (m *Manager) Channel() Channel { return m.ch }

// Logger returns the base logger handed to sessions.
func (m *Manager) Logger() *zap.Logger { return m.log }

// Sessions returns the number of sessions still tracked.
func (m *Manager) Sessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// OpenSession opens a session of element type T on the manager's channel.
// The session is closed by Cleanup unless the caller closes it first.
func OpenSession[T Numeric](m *Manager, opts Options) (*Session[T], error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrSessionClosed
	}
	if opts.HandleSpace == nil {
		opts.HandleSpace = m.space
	}
	s, err := NewSession[T](m.ch, opts, m.log)
	if err != nil {
		return nil, err
	}
	id := s.ID()
	m.mu.Lock()
	m.sessions[id] = s.Close
	m.mu.Unlock()
	s.release = func() {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
	}
	return s, nil
}

// ProbeDevice opens a session on device, reads its name and memory figures,
// and closes it again.
func ProbeDevice[T Numeric](m *Manager, device int) (DeviceInfo, error) {
	s, err := OpenSession[T](m, Options{Device: device})
	if err != nil {
		return DeviceInfo{}, err
	}
	defer s.Close()
	mem, err := s.DeviceMemory()
	if err != nil {
		return DeviceInfo{}, err
	}
	return DeviceInfo{
		Ordinal:   device,
		Name:      s.DeviceName(),
		Precision: s.Precision().String(),
		Memory:    mem,
	}, nil
}

// EachDevice runs fn once per device concurrently and returns the first
// error. The context passed to fn is cancelled when any call fails.
func (m *Manager) EachDevice(ctx context.Context, devices []int, fn func(ctx context.Context, device int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range devices {
		g.Go(func() error {
			if err := fn(gctx, d); err != nil {
				return errors.Wrapf(err, "device %d", d)
			}
			return nil
		})
	}
	return g.Wait()
}

// Cleanup closes every tracked session and then the channel.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	closers := make([]func() error, 0, len(m.sessions))
	for _, c := range m.sessions {
		closers = append(closers, c)
	}
	m.mu.Unlock()

	var first error
	for _, c := range closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	if err := m.ch.Close(); err != nil && first == nil {
		first = err
	}
	m.log.Info("manager cleaned up", zap.Int("sessions", len(closers)))
	return first
}
