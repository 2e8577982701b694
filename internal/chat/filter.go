package chat

import (
	"sync"
	"time"

	"github.com/spsquared/battleboxes-server/internal/config"
)

// Filter enforces the per-player spam policy: a minimum gap between
// messages with a small grace allowance for bursts, plus a hard per-minute
// cap. One Filter serves a whole room.
type Filter struct {
	mu    sync.Mutex
	cfg   config.ChatConfig
	users map[string]*userState
	now   func() time.Time
}

type userState struct {
	last      time.Time
	graceUsed int
	windowEnd time.Time
	count     int
}

// NewFilter creates a filter over the chat configuration.
func NewFilter(cfg config.ChatConfig) *Filter {
	return &Filter{
		cfg:   cfg,
		users: make(map[string]*userState),
		now:   time.Now,
	}
}

// Allow reports whether a player may send a message right now and records
// the attempt if so.
func (f *Filter) Allow(username string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	u := f.users[username]
	if u == nil {
		u = &userState{}
		f.users[username] = u
	}

	if now.After(u.windowEnd) {
		u.windowEnd = now.Add(time.Minute)
		u.count = 0
	}
	if u.count >= f.cfg.MaxSpamPerMinute {
		return false
	}

	minGap := time.Duration(f.cfg.MinMillisPerMessage) * time.Millisecond
	if !u.last.IsZero() && now.Sub(u.last) < minGap {
		// Burst grace: a few rapid messages are tolerated before the gap
		// is enforced.
		if u.graceUsed >= f.cfg.SpamGraceCount {
			return false
		}
		u.graceUsed++
	} else {
		u.graceUsed = 0
	}

	u.last = now
	u.count++
	return true
}

// Forget drops a player's spam state when they leave the room.
func (f *Filter) Forget(username string) {
	f.mu.Lock()
	delete(f.users, username)
	f.mu.Unlock()
}

// Clean applies the banned-word list to a message body.
func (f *Filter) Clean(text string) string {
	return Censor(text, f.cfg.BannedWords)
}
