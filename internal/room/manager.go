package room

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/spsquared/battleboxes-server/internal/accounts"
	"github.com/spsquared/battleboxes-server/internal/config"
	"github.com/spsquared/battleboxes-server/internal/tilemap"
)

const (
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomIDLength   = 6
)

// Manager tracks every live room and enforces the one-player-one-room rule
// across the hub.
type Manager struct {
	cfg     config.AppConfig
	store   accounts.Store
	library *tilemap.Library
	metrics Metrics

	mu     sync.Mutex
	rooms  map[string]*Room
	active map[string]string // username -> room id
	rng    *rand.Rand
}

// NewManager creates a manager over a shared map library and account store.
func NewManager(cfg config.AppConfig, store accounts.Store, lib *tilemap.Library, metrics Metrics) *Manager {
	return &Manager{
		cfg:     cfg,
		store:   store,
		library: lib,
		metrics: metrics,
		rooms:   make(map[string]*Room),
		active:  make(map[string]string),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateGame spins up a new room hosted by the given username and joins
// the host to it. Returns the room and the host's auth code.
func (m *Manager) CreateGame(ctx context.Context, host string, opts Options) (*Room, string, error) {
	if opts.MaxPlayers <= 0 || opts.MaxPlayers > m.cfg.Game.MaxPlayers {
		opts.MaxPlayers = m.cfg.Game.MaxPlayers
	}
	if opts.AIPlayers < 0 || opts.AIPlayers > m.cfg.Game.MaxBots {
		opts.AIPlayers = m.cfg.Game.MaxBots
	}

	m.mu.Lock()
	if current, ok := m.active[host]; ok {
		m.mu.Unlock()
		return nil, "", fmt.Errorf("%w: %s is in room %s", ErrAlreadyExists, host, current)
	}

	id := m.newRoomID()
	r := newRoom(id, host, opts, m.cfg, m.store, m.library, m.releaseUsername, m.metrics)
	m.rooms[id] = r
	m.active[host] = id
	m.mu.Unlock()

	r.OnEnd(func(err error) {
		m.mu.Lock()
		delete(m.rooms, id)
		m.mu.Unlock()
		if err != nil {
			log.Printf("[%s] room ended with error: %v", id, err)
		}
	})

	code, err := r.Join(ctx, host)
	if err != nil {
		r.Shutdown()
		m.mu.Lock()
		delete(m.active, host)
		m.mu.Unlock()
		return nil, "", err
	}
	return r, code, nil
}

// JoinGame reserves a seat in an existing room for a username. A username
// already seated anywhere on the hub is rejected.
func (m *Manager) JoinGame(ctx context.Context, id, username string) (string, error) {
	m.mu.Lock()
	r, ok := m.rooms[id]
	if !ok {
		m.mu.Unlock()
		return "", ErrRoomClosed
	}
	if current, seated := m.active[username]; seated {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s is in room %s", ErrAlreadyExists, username, current)
	}
	m.active[username] = id
	m.mu.Unlock()

	code, err := r.Join(ctx, username)
	if err != nil {
		m.releaseUsername(username)
		return "", err
	}
	return code, nil
}

// GetGame returns a live room by id.
func (m *Manager) GetGame(id string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	return r, ok
}

// GetGames lists rooms, optionally only those open to new joins, sorted by
// id for a stable listing.
func (m *Manager) GetGames(onlyJoinable bool) []GameInfo {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	infos := make([]GameInfo, 0, len(rooms))
	for _, r := range rooms {
		if onlyJoinable && !r.Joinable() {
			continue
		}
		infos = append(infos, r.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// EndGame shuts a room down by id.
func (m *Manager) EndGame(id string) bool {
	r, ok := m.GetGame(id)
	if ok {
		r.Shutdown()
	}
	return ok
}

// Shutdown ends every room; used on process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range rooms {
		wg.Add(1)
		r.OnEnd(func(error) { wg.Done() })
		r.Shutdown()
	}
	wg.Wait()
}

// Counts returns the number of live rooms and seated players.
func (m *Manager) Counts() (rooms, players int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms), len(m.active)
}

// releaseUsername frees a hub-wide seat reservation.
func (m *Manager) releaseUsername(username string) {
	m.mu.Lock()
	delete(m.active, username)
	m.mu.Unlock()
}

// newRoomID generates an unused 6-character room id. Caller holds mu.
func (m *Manager) newRoomID() string {
	buf := make([]byte, roomIDLength)
	for {
		for i := range buf {
			buf[i] = roomIDAlphabet[m.rng.Intn(len(roomIDAlphabet))]
		}
		id := string(buf)
		if _, taken := m.rooms[id]; !taken {
			return id
		}
	}
}
