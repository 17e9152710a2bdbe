package player

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Listener receives a snapshot after every change. Listeners run one at a time, in
// the order of the changes, and must not call back into the Session.
type Listener func(State)

// Session 单个播放会话的状态，所有修改都经过互斥锁
type Session struct {
	id string

	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
	rng       *rand.Rand

	// notifyMu keeps deliveries in the order the changes happened.
	notifyMu sync.Mutex
}

// Option configures a Session.
type Option func(*Session)

// WithRand sets the source used by ToggleShuffle.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) { s.rng = r }
}

// WithState starts the session from a stored snapshot.
func WithState(st State) Option {
	return func(s *Session) {
		st = st.clone()
		st.normalise()
		s.state = st
	}
}

// NewSession creates an idle session.
func NewSession(id string, opts ...Option) *Session {
	s := &Session{
		id:        id,
		state:     NewState(),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn, delivers the current state to it immediately and returns
// a function that removes it again.
func (s *Session) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	snapshot := s.state.clone()
	s.notifyMu.Lock()
	s.mu.Unlock()

	fn(snapshot)
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// update applies fn under the lock and notifies listeners when fn reports a change.
func (s *Session) update(fn func(st *State) bool) {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	snapshot := s.state.clone()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.notifyMu.Lock()
	s.mu.Unlock()

	defer s.notifyMu.Unlock()
	for _, l := range listeners {
		l(snapshot)
	}
}

// load makes queue[index] the current song, rewound and with its duration.
func load(st *State, index int) {
	st.CurrentTime = 0
	if index >= 0 && index < len(st.Queue) {
		song := st.Queue[index]
		st.CurrentIndex = index
		st.CurrentSong = &song
		st.Duration = float64(song.Duration)
		return
	}
	st.CurrentIndex = -1
	st.CurrentSong = nil
	st.Duration = 0
}

// SetQueue replaces the queue and selects songs[start] without starting playback.
func (s *Session) SetQueue(songs []Song, start int) {
	s.update(func(st *State) bool {
		setQueue(st, songs, start)
		return true
	})
}

func setQueue(st *State, songs []Song, start int) {
	st.Queue = append([]Song{}, songs...)
	st.OriginalQueue = append([]Song{}, songs...)
	load(st, start)
	if st.CurrentSong == nil {
		st.IsPlaying = false
	}
}

// Play starts song. With a non-empty queue the queue is replaced and positioned at
// song (or its first entry when song is not in it); otherwise song is played
// against the current queue.
func (s *Session) Play(song Song, queue []Song) {
	s.update(func(st *State) bool {
		if len(queue) > 0 {
			start := indexOf(queue, song.ID)
			if start < 0 {
				start = 0
			}
			setQueue(st, queue, start)
		} else {
			st.CurrentSong = &song
			st.CurrentIndex = indexOf(st.Queue, song.ID)
			st.CurrentTime = 0
			st.Duration = float64(song.Duration)
		}
		st.IsPlaying = st.CurrentSong != nil
		return true
	})
}

// Pause stops playback and keeps the position.
func (s *Session) Pause() {
	s.update(func(st *State) bool {
		if !st.IsPlaying {
			return false
		}
		st.IsPlaying = false
		return true
	})
}

// Resume continues the current song. Without one it does nothing.
func (s *Session) Resume() {
	s.update(func(st *State) bool {
		if st.IsPlaying || st.CurrentSong == nil {
			return false
		}
		st.IsPlaying = true
		return true
	})
}

// Toggle switches between Pause and Resume.
func (s *Session) Toggle() {
	s.update(func(st *State) bool {
		if st.IsPlaying {
			st.IsPlaying = false
			return true
		}
		if st.CurrentSong == nil {
			return false
		}
		st.IsPlaying = true
		return true
	})
}

// Next advances the queue. Repeat-one replays the current song, repeat-all wraps at
// the end and otherwise the end of the queue pauses playback.
func (s *Session) Next() {
	s.update(func(st *State) bool {
		n := len(st.Queue)
		if n == 0 {
			return false
		}
		var next int
		switch {
		case st.RepeatMode == RepeatOne && st.CurrentIndex >= 0:
			next = st.CurrentIndex
		case st.CurrentIndex < n-1:
			next = st.CurrentIndex + 1
		case st.RepeatMode == RepeatAll:
			next = 0
		default:
			if !st.IsPlaying {
				return false
			}
			st.IsPlaying = false
			return true
		}
		load(st, next)
		st.IsPlaying = true
		return true
	})
}

// Previous restarts the current song when more than three seconds have played,
// otherwise steps back, wrapping from the first entry to the last.
func (s *Session) Previous() {
	s.update(func(st *State) bool {
		n := len(st.Queue)
		if n == 0 {
			return false
		}
		if st.CurrentTime > restartThreshold {
			st.CurrentTime = 0
			return true
		}
		prev := n - 1
		if st.CurrentIndex > 0 {
			prev = st.CurrentIndex - 1
		}
		load(st, prev)
		st.IsPlaying = true
		return true
	})
}

// Seek moves the position, clamped to the song length when it is known.
func (s *Session) Seek(seconds float64) {
	s.update(func(st *State) bool {
		if math.IsNaN(seconds) {
			return false
		}
		seconds = math.Max(0, seconds)
		if st.Duration > 0 {
			seconds = math.Min(seconds, st.Duration)
		}
		st.CurrentTime = seconds
		return true
	})
}

// ReportProgress records the position and length reported by the playing client.
func (s *Session) ReportProgress(position, duration float64) {
	s.update(func(st *State) bool {
		if math.IsNaN(position) || position < 0 {
			return false
		}
		st.CurrentTime = position
		if duration > 0 && !math.IsInf(duration, 0) {
			st.Duration = duration
		}
		return true
	})
}

// SetVolume sets the volume, clamped to [0, 1].
func (s *Session) SetVolume(v float64) {
	s.update(func(st *State) bool {
		if math.IsNaN(v) {
			return false
		}
		st.Volume = clamp(v, 0, 1)
		return true
	})
}

// ToggleShuffle shuffles the queue keeping the current song first, or restores the
// original order when shuffle is already on.
func (s *Session) ToggleShuffle() {
	s.update(func(st *State) bool {
		if st.IsShuffle {
			st.IsShuffle = false
			st.Queue = append([]Song{}, st.OriginalQueue...)
			st.CurrentIndex = -1
			if st.CurrentSong != nil {
				st.CurrentIndex = indexOf(st.Queue, st.CurrentSong.ID)
			}
			return true
		}

		shuffled := append([]Song{}, st.Queue...)
		current := -1
		if st.CurrentSong != nil {
			current = indexOf(shuffled, st.CurrentSong.ID)
		}
		var head *Song
		if current >= 0 {
			song := shuffled[current]
			head = &song
			shuffled = append(shuffled[:current], shuffled[current+1:]...)
		}
		// Fisher-Yates
		for i := len(shuffled) - 1; i > 0; i-- {
			j := s.rng.Intn(i + 1)
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		}
		st.CurrentIndex = -1
		if head != nil {
			shuffled = append([]Song{*head}, shuffled...)
			st.CurrentIndex = 0
		}
		st.Queue = shuffled
		st.IsShuffle = true
		return true
	})
}

// CycleRepeat steps the repeat mode off → all → one → off.
func (s *Session) CycleRepeat() {
	s.update(func(st *State) bool {
		st.RepeatMode = st.RepeatMode.next()
		return true
	})
}

// SetFavorite updates the favourite flag of the current song and its queue entries.
func (s *Session) SetFavorite(favorite bool) {
	s.update(func(st *State) bool {
		if st.CurrentSong == nil {
			return false
		}
		st.CurrentSong.IsFavorite = favorite
		for _, q := range [][]Song{st.Queue, st.OriginalQueue} {
			for i := range q {
				if q[i].ID == st.CurrentSong.ID {
					q[i].IsFavorite = favorite
				}
			}
		}
		return true
	})
}

// Enqueue appends songs to both the playing and the original order.
func (s *Session) Enqueue(songs ...Song) {
	if len(songs) == 0 {
		return
	}
	s.update(func(st *State) bool {
		st.Queue = append(st.Queue, songs...)
		st.OriginalQueue = append(st.OriginalQueue, songs...)
		return true
	})
}

// Clear empties the queue and stops playback.
func (s *Session) Clear() {
	s.update(func(st *State) bool {
		st.Queue = []Song{}
		st.OriginalQueue = []Song{}
		st.CurrentIndex = -1
		st.CurrentSong = nil
		st.IsPlaying = false
		st.CurrentTime = 0
		st.Duration = 0
		return true
	})
}

// Remove drops the queue entry at index. Removing the current song stops playback;
// an out-of-range index does nothing.
func (s *Session) Remove(index int) {
	s.update(func(st *State) bool {
		if index < 0 || index >= len(st.Queue) {
			return false
		}
		removed := st.Queue[index]
		st.Queue = append(st.Queue[:index:index], st.Queue[index+1:]...)

		original := st.OriginalQueue[:0:0]
		for _, song := range st.OriginalQueue {
			if song.ID != removed.ID {
				original = append(original, song)
			}
		}
		st.OriginalQueue = original

		switch {
		case index < st.CurrentIndex:
			st.CurrentIndex--
		case index == st.CurrentIndex:
			st.IsPlaying = false
			st.CurrentIndex = -1
			st.CurrentSong = nil
			st.CurrentTime = 0
			st.Duration = 0
		}
		return true
	})
}
