// Package accounts defines the persisted player record and the storage
// boundary the game core reads it through. The record is loaded once when a
// player joins a room and written back when the player is removed.
package accounts

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a username has no stored account.
var ErrNotFound = errors.New("account not found")

// Trackers holds the per-account lifetime counters.
type Trackers struct {
	Time          int64 `json:"time"`
	DistanceMoved int64 `json:"distanceMoved"`
	Jumps         int64 `json:"jumps"`
	WallJumps     int64 `json:"wallJumps"`
	Falls         int64 `json:"falls"`
	Kills         int64 `json:"kills"`
	Deaths        int64 `json:"deaths"`
	ShotsFired    int64 `json:"shotsFired"`
	ShotsHit      int64 `json:"shotsHit"`
	LootBoxes     int64 `json:"lootBoxes"`
	Wins          int64 `json:"wins"`
	Losses        int64 `json:"losses"`
}

// Infraction counts how many times a player was kicked for a reason.
type Infraction struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// Data is one player's persisted account record.
type Data struct {
	Username     string       `json:"username"`
	XP           int64        `json:"xp"`
	Trackers     Trackers     `json:"trackers"`
	Achievements []string     `json:"achievements"`
	Infractions  []Infraction `json:"infractions"`
}

// RecordInfraction increments the count for a kick reason, appending a new
// entry the first time the reason is seen.
func (d *Data) RecordInfraction(reason string) {
	for i := range d.Infractions {
		if d.Infractions[i].Reason == reason {
			d.Infractions[i].Count++
			return
		}
	}
	d.Infractions = append(d.Infractions, Infraction{Reason: reason, Count: 1})
}

// Store is the account database boundary. Load returns ErrNotFound for an
// unknown username; any other error is a transient database failure.
type Store interface {
	Load(ctx context.Context, username string) (*Data, error)
	Save(ctx context.Context, data *Data) error
}

// MemoryStore is an in-process Store. With CreateMissing set, Load mints a
// fresh record for unknown usernames instead of failing, which is how the
// server runs when an external account database is not wired up.
type MemoryStore struct {
	mu            sync.RWMutex
	accounts      map[string]*Data
	CreateMissing bool
}

// NewMemoryStore returns an empty in-memory account store.
func NewMemoryStore(createMissing bool) *MemoryStore {
	return &MemoryStore{
		accounts:      make(map[string]*Data),
		CreateMissing: createMissing,
	}
}

// Load returns a copy of the stored record so callers can mutate freely.
func (s *MemoryStore) Load(ctx context.Context, username string) (*Data, error) {
	s.mu.RLock()
	stored, ok := s.accounts[username]
	s.mu.RUnlock()

	if !ok {
		if !s.CreateMissing {
			return nil, ErrNotFound
		}
		return &Data{Username: username}, nil
	}

	out := *stored
	out.Achievements = append([]string(nil), stored.Achievements...)
	out.Infractions = append([]Infraction(nil), stored.Infractions...)
	return &out, nil
}

// Save stores a copy of the record under its username.
func (s *MemoryStore) Save(ctx context.Context, data *Data) error {
	stored := *data
	stored.Achievements = append([]string(nil), data.Achievements...)
	stored.Infractions = append([]Infraction(nil), data.Infractions...)

	s.mu.Lock()
	s.accounts[data.Username] = &stored
	s.mu.Unlock()
	return nil
}
