package player

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func songs(ids ...string) []Song {
	out := make([]Song, len(ids))
	for i, id := range ids {
		out[i] = Song{ID: id, Title: "Song " + id, Duration: 180}
	}
	return out
}

func ids(list []Song) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}

func newTestSession(opts ...Option) *Session {
	return NewSession("test", append([]Option{WithRand(rand.New(rand.NewSource(1)))}, opts...)...)
}

func TestNewSessionDefaults(t *testing.T) {
	st := newTestSession().State()
	assert.Nil(t, st.CurrentSong)
	assert.False(t, st.IsPlaying)
	assert.Equal(t, DefaultVolume, st.Volume)
	assert.Equal(t, RepeatOff, st.RepeatMode)
	assert.Equal(t, -1, st.CurrentIndex)
	assert.Empty(t, st.Queue)
}

func TestSubscribe(t *testing.T) {
	s := newTestSession()

	var got []State
	unsubscribe := s.Subscribe(func(st State) { got = append(got, st) })
	require.Len(t, got, 1, "current state is delivered immediately")

	s.SetVolume(0.5)
	require.Len(t, got, 2)
	assert.Equal(t, 0.5, got[1].Volume)

	unsubscribe()
	unsubscribe()
	s.SetVolume(0.2)
	assert.Len(t, got, 2)
}

func TestSnapshotsAreCopies(t *testing.T) {
	s := newTestSession()
	queue := songs("a", "b")
	s.SetQueue(queue, 0)
	queue[0].Title = "changed"

	st := s.State()
	assert.Equal(t, "Song a", st.Queue[0].Title)
	st.Queue[1].Title = "mutated"
	st.CurrentSong.Title = "mutated"

	again := s.State()
	assert.Equal(t, "Song b", again.Queue[1].Title)
	assert.Equal(t, "Song a", again.CurrentSong.Title)
}

func TestSetQueueDoesNotStartPlayback(t *testing.T) {
	s := newTestSession()
	s.SetQueue(songs("a", "b", "c"), 1)

	st := s.State()
	assert.Equal(t, "b", st.CurrentSong.ID)
	assert.Equal(t, 1, st.CurrentIndex)
	assert.False(t, st.IsPlaying)
	assert.Equal(t, float64(180), st.Duration)

	s.SetQueue(songs("a"), 5)
	st = s.State()
	assert.Nil(t, st.CurrentSong)
	assert.Equal(t, -1, st.CurrentIndex)
}

func TestPlay(t *testing.T) {
	s := newTestSession()
	queue := songs("a", "b", "c")

	s.Play(queue[2], queue)
	st := s.State()
	assert.Equal(t, "c", st.CurrentSong.ID)
	assert.Equal(t, 2, st.CurrentIndex)
	assert.True(t, st.IsPlaying)

	s.Play(Song{ID: "x"}, songs("a", "b"))
	st = s.State()
	assert.Equal(t, "a", st.CurrentSong.ID, "unknown song starts the new queue from the top")

	s.Play(Song{ID: "b", Title: "B"}, nil)
	st = s.State()
	assert.Equal(t, "b", st.CurrentSong.ID)
	assert.Equal(t, 1, st.CurrentIndex)

	s.Play(Song{ID: "loose"}, nil)
	st = s.State()
	assert.Equal(t, "loose", st.CurrentSong.ID)
	assert.Equal(t, -1, st.CurrentIndex)
	assert.True(t, st.IsPlaying)
}

func TestPauseResumeToggle(t *testing.T) {
	s := newTestSession()

	s.Resume()
	assert.False(t, s.State().IsPlaying, "nothing to resume")
	s.Toggle()
	assert.False(t, s.State().IsPlaying)

	queue := songs("a")
	s.Play(queue[0], queue)
	s.Pause()
	assert.False(t, s.State().IsPlaying)
	s.Resume()
	assert.True(t, s.State().IsPlaying)
	s.Toggle()
	assert.False(t, s.State().IsPlaying)
	s.Toggle()
	assert.True(t, s.State().IsPlaying)
}

func TestNext(t *testing.T) {
	s := newTestSession()
	s.Next()
	assert.Nil(t, s.State().CurrentSong, "empty queue is a no-op")

	queue := songs("a", "b")
	s.Play(queue[0], queue)
	s.Seek(42)

	s.Next()
	st := s.State()
	assert.Equal(t, "b", st.CurrentSong.ID)
	assert.Zero(t, st.CurrentTime)
	assert.True(t, st.IsPlaying)

	s.Next()
	st = s.State()
	assert.Equal(t, "b", st.CurrentSong.ID)
	assert.False(t, st.IsPlaying, "end of queue pauses")

	s.CycleRepeat() // all
	s.Next()
	st = s.State()
	assert.Equal(t, "a", st.CurrentSong.ID)
	assert.True(t, st.IsPlaying)

	s.CycleRepeat() // one
	s.Next()
	assert.Equal(t, "a", s.State().CurrentSong.ID)
}

func TestPrevious(t *testing.T) {
	s := newTestSession()
	queue := songs("a", "b", "c")
	s.Play(queue[1], queue)

	s.Seek(10)
	s.Previous()
	st := s.State()
	assert.Equal(t, "b", st.CurrentSong.ID, "past three seconds restarts the song")
	assert.Zero(t, st.CurrentTime)

	s.Previous()
	assert.Equal(t, "a", s.State().CurrentSong.ID)

	s.Previous()
	assert.Equal(t, "c", s.State().CurrentSong.ID, "wraps to the end")
}

func TestSeekAndProgress(t *testing.T) {
	s := newTestSession()
	queue := songs("a")
	s.Play(queue[0], queue)

	s.Seek(-5)
	assert.Zero(t, s.State().CurrentTime)
	s.Seek(500)
	assert.Equal(t, float64(180), s.State().CurrentTime)

	s.ReportProgress(12.5, 181.2)
	st := s.State()
	assert.Equal(t, 12.5, st.CurrentTime)
	assert.Equal(t, 181.2, st.Duration)

	s.ReportProgress(-1, 0)
	assert.Equal(t, 12.5, s.State().CurrentTime)
}

func TestSetVolumeClamps(t *testing.T) {
	s := newTestSession()
	s.SetVolume(1.7)
	assert.Equal(t, 1.0, s.State().Volume)
	s.SetVolume(-0.3)
	assert.Equal(t, 0.0, s.State().Volume)
	s.SetVolume(0.25)
	assert.Equal(t, 0.25, s.State().Volume)
}

func TestToggleShuffle(t *testing.T) {
	s := newTestSession()
	queue := songs("a", "b", "c", "d", "e", "f")
	s.Play(queue[2], queue)

	s.ToggleShuffle()
	st := s.State()
	assert.True(t, st.IsShuffle)
	assert.Equal(t, "c", st.Queue[0].ID, "current song leads the shuffled queue")
	assert.Equal(t, 0, st.CurrentIndex)
	assert.ElementsMatch(t, ids(queue), ids(st.Queue))
	assert.Equal(t, ids(queue), ids(st.OriginalQueue))

	s.Next()
	s.ToggleShuffle()
	st = s.State()
	assert.False(t, st.IsShuffle)
	assert.Equal(t, ids(queue), ids(st.Queue))
	assert.Equal(t, indexOf(queue, st.CurrentSong.ID), st.CurrentIndex)
}

func TestToggleShuffleWithoutCurrentSong(t *testing.T) {
	s := newTestSession()
	s.Enqueue(songs("a", "b", "c")...)

	s.ToggleShuffle()
	st := s.State()
	assert.Equal(t, -1, st.CurrentIndex)
	assert.Len(t, st.Queue, 3)
}

func TestCycleRepeat(t *testing.T) {
	s := newTestSession()
	var modes []RepeatMode
	for i := 0; i < 4; i++ {
		s.CycleRepeat()
		modes = append(modes, s.State().RepeatMode)
	}
	assert.Equal(t, []RepeatMode{RepeatAll, RepeatOne, RepeatOff, RepeatAll}, modes)
}

func TestEnqueueAndClear(t *testing.T) {
	s := newTestSession()
	queue := songs("a")
	s.Play(queue[0], queue)
	s.Enqueue(songs("b", "c")...)

	st := s.State()
	assert.Equal(t, []string{"a", "b", "c"}, ids(st.Queue))
	assert.Equal(t, []string{"a", "b", "c"}, ids(st.OriginalQueue))

	s.Clear()
	st = s.State()
	assert.Empty(t, st.Queue)
	assert.Empty(t, st.OriginalQueue)
	assert.Nil(t, st.CurrentSong)
	assert.Equal(t, -1, st.CurrentIndex)
	assert.False(t, st.IsPlaying)
}

func TestRemove(t *testing.T) {
	s := newTestSession()
	queue := songs("a", "b", "c", "d")
	s.Play(queue[2], queue)

	calls := 0
	s.Subscribe(func(State) { calls++ })
	s.Remove(-1)
	s.Remove(4)
	assert.Equal(t, 1, calls, "invalid index is a no-op")

	s.Remove(0)
	st := s.State()
	assert.Equal(t, []string{"b", "c", "d"}, ids(st.Queue))
	assert.Equal(t, []string{"b", "c", "d"}, ids(st.OriginalQueue))
	assert.Equal(t, 1, st.CurrentIndex)
	assert.Equal(t, "c", st.CurrentSong.ID)
	assert.True(t, st.IsPlaying)

	s.Remove(2)
	assert.Equal(t, 1, s.State().CurrentIndex)

	s.Remove(1)
	st = s.State()
	assert.Equal(t, []string{"b"}, ids(st.Queue))
	assert.Equal(t, -1, st.CurrentIndex)
	assert.Nil(t, st.CurrentSong)
	assert.False(t, st.IsPlaying)
}

func TestSetFavorite(t *testing.T) {
	s := newTestSession()
	s.SetFavorite(true)
	assert.Nil(t, s.State().CurrentSong)

	queue := songs("a", "b")
	s.Play(queue[0], queue)
	s.SetFavorite(true)
	st := s.State()
	assert.True(t, st.CurrentSong.IsFavorite)
	assert.True(t, st.Queue[0].IsFavorite)
	assert.False(t, st.Queue[1].IsFavorite)
}

func TestConcurrentUpdatesKeepOrder(t *testing.T) {
	s := newTestSession()
	var mu sync.Mutex
	last := -1.0
	ordered := true
	s.Subscribe(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		if st.CurrentTime < last {
			ordered = false
		}
		last = st.CurrentTime
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.SetVolume(float64(j) / 50)
			}
		}()
	}
	for j := 1; j <= 100; j++ {
		s.ReportProgress(float64(j), 0)
	}
	wg.Wait()
	assert.True(t, ordered)
	assert.Equal(t, 100.0, s.State().CurrentTime)
}

func TestWithStateNormalises(t *testing.T) {
	s := NewSession("restored", WithState(State{
		Volume:       3,
		RepeatMode:   "sometimes",
		CurrentIndex: 9,
		IsPlaying:    true,
	}))
	st := s.State()
	assert.Equal(t, 1.0, st.Volume)
	assert.Equal(t, RepeatOff, st.RepeatMode)
	assert.Equal(t, -1, st.CurrentIndex)
	assert.False(t, st.IsPlaying)
	assert.NotNil(t, st.Queue)
}

type memoryStore struct {
	mu      sync.Mutex
	states  map[string]State
	saves   int
	loadErr error
}

func (m *memoryStore) Load(_ context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	st, ok := m.states[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *memoryStore) Save(_ context.Context, id string, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = st
	m.saves++
	return nil
}

func TestManagerRestoresAndSaves(t *testing.T) {
	ctx := context.Background()
	stored := NewState()
	stored.Queue = songs("a", "b")
	stored.OriginalQueue = songs("a", "b")
	stored.CurrentIndex = 1
	stored.CurrentSong = &stored.Queue[1]
	store := &memoryStore{states: map[string]State{"living-room": stored}}

	m := NewManager(store)
	s, err := m.Get(ctx, "living-room")
	require.NoError(t, err)
	assert.Equal(t, "b", s.State().CurrentSong.ID)
	assert.Zero(t, store.saves, "restoring does not write back")

	s.SetVolume(0.1)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 0.1, store.states["living-room"].Volume)

	same, err := m.Get(ctx, "living-room")
	require.NoError(t, err)
	assert.Same(t, s, same)
	assert.Equal(t, 1, m.Count())

	_, ok := m.Lookup("kitchen")
	assert.False(t, ok)
}

func TestManagerRejectsBadIDs(t *testing.T) {
	m := NewManager(nil)
	for _, id := range []string{"", "a/b", "x y", string(make([]byte, 65))} {
		_, err := m.Get(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidSessionID, id)
	}
}

func TestManagerIgnoresBrokenStore(t *testing.T) {
	store := &memoryStore{states: map[string]State{}, loadErr: errors.New("connection refused")}
	s, err := NewManager(store).Get(context.Background(), "desk")
	require.NoError(t, err)
	assert.Equal(t, DefaultVolume, s.State().Volume)
}

// gatedStore blocks Load for one session until release is closed.
type gatedStore struct {
	memoryStore
	gated   string
	loading chan struct{}
	release chan struct{}
}

func (g *gatedStore) Load(ctx context.Context, id string) (*State, error) {
	if id == g.gated {
		close(g.loading)
		<-g.release
	}
	return g.memoryStore.Load(ctx, id)
}

func TestManagerSlowLoadDoesNotBlockOtherSessions(t *testing.T) {
	store := &gatedStore{
		memoryStore: memoryStore{states: map[string]State{}},
		gated:       "slow",
		loading:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	m := NewManager(store)

	slowDone := make(chan *Session)
	go func() {
		s, err := m.Get(context.Background(), "slow")
		assert.NoError(t, err)
		slowDone <- s
	}()
	<-store.loading

	fast, err := m.Get(t.Context(), "fast")
	require.NoError(t, err)
	assert.Equal(t, "fast", fast.ID())
	_, ok := m.Lookup("slow")
	assert.False(t, ok)

	close(store.release)
	slow := <-slowDone
	require.NotNil(t, slow)
	assert.Equal(t, 2, m.Count())
}

func TestManagerConcurrentGetSharesSession(t *testing.T) {
	m := NewManager(&memoryStore{states: map[string]State{}})

	const n = 16
	got := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Get(context.Background(), "shared")
			assert.NoError(t, err)
			got[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, 1, m.Count())
}
