// Package player keeps the playback state of listening sessions and pushes every
// change to its subscribers.
package player

// RepeatMode 循环模式
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

// next returns the mode that follows m in the off → all → one cycle.
func (m RepeatMode) next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// restartThreshold is how far into a song Previous restarts it instead of going back.
const restartThreshold = 3.0

// DefaultVolume is the volume of a new session.
const DefaultVolume = 0.7

// Song is a queue entry.
type Song struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`
	Duration   int    `json:"duration,omitempty"`
	IsFavorite bool   `json:"isFavorite,omitempty"`
}

// State is a snapshot of a session.
type State struct {
	CurrentSong   *Song      `json:"currentSong"`
	IsPlaying     bool       `json:"isPlaying"`
	CurrentTime   float64    `json:"currentTime"`
	Duration      float64    `json:"duration"`
	Volume        float64    `json:"volume"`
	IsShuffle     bool       `json:"isShuffle"`
	RepeatMode    RepeatMode `json:"repeatMode"`
	Queue         []Song     `json:"queue"`
	OriginalQueue []Song     `json:"originalQueue"`
	CurrentIndex  int        `json:"currentIndex"`
}

// NewState returns the state of an idle session.
func NewState() State {
	return State{
		Volume:        DefaultVolume,
		RepeatMode:    RepeatOff,
		Queue:         []Song{},
		OriginalQueue: []Song{},
		CurrentIndex:  -1,
	}
}

// clone deep-copies the slices and the current song so snapshots never alias
// session internals.
func (s State) clone() State {
	out := s
	out.Queue = append([]Song{}, s.Queue...)
	out.OriginalQueue = append([]Song{}, s.OriginalQueue...)
	if s.CurrentSong != nil {
		song := *s.CurrentSong
		out.CurrentSong = &song
	}
	return out
}

// normalise repairs a snapshot restored from storage.
func (s *State) normalise() {
	if s.Queue == nil {
		s.Queue = []Song{}
	}
	if s.OriginalQueue == nil {
		s.OriginalQueue = []Song{}
	}
	switch s.RepeatMode {
	case RepeatOff, RepeatAll, RepeatOne:
	default:
		s.RepeatMode = RepeatOff
	}
	s.Volume = clamp(s.Volume, 0, 1)
	if s.CurrentIndex < -1 || s.CurrentIndex >= len(s.Queue) {
		s.CurrentIndex = -1
	}
	if s.CurrentSong == nil {
		s.IsPlaying = false
	}
}

func indexOf(songs []Song, id string) int {
	for i, s := range songs {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
