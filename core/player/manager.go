package player

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"vibestream/logger"
)

// ErrInvalidSessionID 会话 ID 不合法
var ErrInvalidSessionID = errors.New("invalid session id")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// SnapshotStore persists session state between restarts.
type SnapshotStore interface {
	// Load returns nil, nil when nothing is stored for id.
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, id string, st State) error
}

const saveTimeout = 3 * time.Second

// Manager 管理所有播放会话
type Manager struct {
	store SnapshotStore
	opts  []Option

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager. store may be nil, in which case sessions live in
// memory only. opts are applied to every new session.
func NewManager(store SnapshotStore, opts ...Option) *Manager {
	return &Manager{
		store:    store,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// ValidSessionID reports whether id can name a session.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Get returns the session for id, creating it on first use. A new session starts
// from the stored snapshot when there is one and saves itself after every change.
// The snapshot is loaded without holding the manager lock, so a slow store only
// delays callers asking for that id.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if !ValidSessionID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	if s, ok := m.Lookup(id); ok {
		return s, nil
	}

	opts := append([]Option{}, m.opts...)
	if m.store != nil {
		st, err := m.store.Load(ctx, id)
		if err != nil {
			logger.Warn("加载播放会话快照失败", logger.String("session", id), logger.ErrorField(err))
		} else if st != nil {
			opts = append(opts, WithState(*st))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// another caller may have created it while the snapshot was loading
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}

	s := NewSession(id, opts...)
	if m.store != nil {
		first := true
		s.Subscribe(func(st State) {
			if first {
				first = false
				return
			}
			m.save(id, st)
		})
	}
	m.sessions[id] = s
	logger.Debug("创建播放会话", logger.String("session", id))
	return s, nil
}

// Lookup returns an existing session without creating one.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) save(id string, st State) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := m.store.Save(ctx, id, st); err != nil {
		logger.Warn("保存播放会话快照失败", logger.String("session", id), logger.ErrorField(err))
	}
}
