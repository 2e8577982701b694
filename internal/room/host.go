package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spsquared/battleboxes-server/internal/accounts"
	"github.com/spsquared/battleboxes-server/internal/chat"
	"github.com/spsquared/battleboxes-server/internal/config"
	"github.com/spsquared/battleboxes-server/internal/game"
	"github.com/spsquared/battleboxes-server/internal/tilemap"
)

// ErrRoomClosed is returned for operations on a room that already ended.
var ErrRoomClosed = errors.New("room closed")

// ErrAlreadyExists is returned when a username tries to join a room it (or
// any room on this hub) already holds a seat in.
var ErrAlreadyExists = errors.New("ALREADY_EXISTS")

// ErrRoomFull is returned when a room is at capacity.
var ErrRoomFull = errors.New("room full")

// ErrGameStarted is returned when joining a room whose match already began.
var ErrGameStarted = errors.New("game already started")

// minRunningPlayers is the floor below which a started game shuts down.
const minRunningPlayers = 2

// tpsWarnThreshold and friends control the slow-tick warning: sustained TPS
// under the threshold, more than the grace after start, warned at most once
// a minute.
const (
	tpsWarnThreshold = 30.0
	tpsWarnGrace     = 2 * time.Second
	tpsWarnInterval  = time.Minute
)

// Client is one connected socket as the room sees it. Implementations must
// be safe for concurrent Send calls.
type Client interface {
	Send(event string, data any)
	Close(reason string)
}

// Options are the creation parameters of a room.
type Options struct {
	MaxPlayers int  `json:"maxPlayers"`
	AIPlayers  int  `json:"aiPlayers"`
	Public     bool `json:"public"`
}

// GameInfo is the public listing entry for a room.
type GameInfo struct {
	ID         string `json:"id"`
	Host       string `json:"host"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	Public     bool   `json:"public"`
	Started    bool   `json:"started"`
}

// Metrics receives room observability callbacks. All methods must be safe
// for concurrent use; a nil Metrics disables them.
type Metrics interface {
	ObserveTickDuration(seconds float64)
	RoomKick(reason string)
}

type pendingAuth struct {
	username string
	timer    *time.Timer
}

// Room is one game: the hub-side half (join codes, sockets, fan-out) plus
// the worker goroutine owning the simulation. The hub half is locked; the
// worker half is single-threaded and reached only through the control
// channel.
type Room struct {
	ID      string
	Host    string
	Options Options

	cfg     config.AppConfig
	store   accounts.Store
	library *tilemap.Library
	metrics Metrics

	mu           sync.Mutex
	clients      map[string]Client
	pending      map[string]pendingAuth // auth code -> pending join
	reserved     map[string]bool        // usernames holding a seat
	started      bool
	ended        bool
	endErr       error
	endListeners []func(err error)

	// onPlayerGone releases the hub-wide username reservation; set by the
	// manager before the room starts.
	onPlayerGone func(username string)

	control chan controlMessage
	events  chan workerEvent
	logs    *LogSender
}

func newRoom(id, host string, opts Options, cfg config.AppConfig, store accounts.Store, lib *tilemap.Library, onPlayerGone func(string), metrics Metrics) *Room {
	r := &Room{
		ID:           id,
		Host:         host,
		Options:      opts,
		cfg:          cfg,
		store:        store,
		library:      lib,
		metrics:      metrics,
		clients:      make(map[string]Client),
		pending:      make(map[string]pendingAuth),
		reserved:     make(map[string]bool),
		onPlayerGone: onPlayerGone,
		control:      make(chan controlMessage, 256),
		events:       make(chan workerEvent, 256),
	}

	workerConn, hubConn := net.Pipe()
	r.logs = NewLogSender(workerConn)
	go func() {
		if err := ServeLogChannel(hubConn, id, log.Printf); err != nil {
			log.Printf("[%s] log channel: %v", id, err)
		}
	}()

	go r.pumpEvents()
	go r.runWorker()
	return r
}

// Join reserves a seat for a username and returns a one-time auth code the
// client must present on its socket handshake. The code expires unused
// after the configured connect timeout.
func (r *Room) Join(ctx context.Context, username string) (string, error) {
	account, err := r.store.Load(ctx, username)
	if err != nil {
		return "", fmt.Errorf("load account %s: %w", username, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return "", ErrRoomClosed
	}
	if r.reserved[username] {
		return "", ErrAlreadyExists
	}
	if r.started {
		return "", ErrGameStarted
	}
	if len(r.reserved) >= r.Options.MaxPlayers {
		return "", ErrRoomFull
	}

	code := uuid.NewString()
	timer := time.AfterFunc(r.cfg.Game.ConnectTimeout, func() {
		r.expireCode(code)
	})
	r.reserved[username] = true
	r.pending[code] = pendingAuth{username: username, timer: timer}
	if !r.send(joinPlayerMsg{Account: account}) {
		timer.Stop()
		delete(r.reserved, username)
		delete(r.pending, code)
		return "", ErrRoomClosed
	}
	return code, nil
}

// expireCode retracts an unredeemed auth code after its timeout.
func (r *Room) expireCode(code string) {
	r.mu.Lock()
	auth, ok := r.pending[code]
	if ok {
		delete(r.pending, code)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.send(dropPendingMsg{Username: auth.username})
	r.playerGone(auth.username)
}

// Redeem consumes an auth code atomically. Unknown or already-used codes
// fail; the caller drops the connection.
func (r *Room) Redeem(code string, c Client) (string, bool) {
	r.mu.Lock()
	auth, ok := r.pending[code]
	if ok {
		delete(r.pending, code)
		auth.timer.Stop()
		r.clients[auth.username] = c
	}
	ended := r.ended
	r.mu.Unlock()

	if !ok || ended {
		return "", false
	}
	r.send(connectPlayerMsg{Username: auth.username})
	return auth.username, true
}

// HandleTick forwards a client physics tick packet to the worker.
func (r *Room) HandleTick(username string, input game.TickInput) {
	r.send(playerInputMsg{Username: username, Input: input})
}

// HandleChat relays a chat line through the spam and profanity filters.
func (r *Room) HandleChat(username, text string) {
	r.send(chatMessageMsg{Username: username, Text: text})
}

// HandlePing requests a pong for the client.
func (r *Room) HandlePing(username string) {
	r.send(pingMsg{Username: username})
}

// HandleReady marks the client as done loading.
func (r *Room) HandleReady(username string) {
	r.send(readyMsg{Username: username})
}

// HandleReadyStart records the client's ready-to-start vote.
func (r *Room) HandleReadyStart(username string, ready bool) {
	r.send(readyStartMsg{Username: username, Ready: ready})
}

// Disconnect removes a client whose socket dropped.
func (r *Room) Disconnect(username string) {
	r.mu.Lock()
	delete(r.clients, username)
	r.mu.Unlock()
	r.send(disconnectMsg{Username: username})
}

// Shutdown asks the worker to end the game.
func (r *Room) Shutdown() {
	r.send(shutdownMsg{})
}

// OnEnd registers a listener fired exactly once when the room is gone. If
// the room already ended, the listener fires immediately.
func (r *Room) OnEnd(fn func(err error)) {
	r.mu.Lock()
	if r.ended {
		err := r.endErr
		r.mu.Unlock()
		fn(err)
		return
	}
	r.endListeners = append(r.endListeners, fn)
	r.mu.Unlock()
}

// Info returns the listing entry for this room.
func (r *Room) Info() GameInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return GameInfo{
		ID:         r.ID,
		Host:       r.Host,
		Players:    len(r.reserved),
		MaxPlayers: r.Options.MaxPlayers,
		Public:     r.Options.Public,
		Started:    r.started,
	}
}

// Joinable reports whether the room accepts new joins.
func (r *Room) Joinable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.ended && !r.started && r.Options.Public && len(r.reserved) < r.Options.MaxPlayers
}

// send queues a control message unless the room already ended.
func (r *Room) send(msg controlMessage) bool {
	select {
	case r.control <- msg:
		return true
	default:
	}
	// Slow path: the worker is busy or gone. Block briefly rather than
	// dropping input on a momentarily full queue.
	select {
	case r.control <- msg:
		return true
	case <-time.After(time.Second):
		return false
	}
}

func (r *Room) playerGone(username string) {
	r.mu.Lock()
	delete(r.reserved, username)
	delete(r.clients, username)
	r.mu.Unlock()
	if r.onPlayerGone != nil {
		r.onPlayerGone(username)
	}
}

// pumpEvents is the hub-side fan-out loop: it turns worker events into
// socket emits and store writes. Exits on endedEvent.
func (r *Room) pumpEvents() {
	for ev := range r.events {
		switch ev := ev.(type) {
		case snapshotEvent:
			r.broadcast("tick", ev.Snapshot)
		case initPhysicsEvent:
			r.sendTo(ev.Username, "initPlayerPhysics", map[string]any{
				"username":   ev.Username,
				"properties": ev.Properties,
			})
		case gameStartEvent:
			r.mu.Lock()
			r.started = true
			r.mu.Unlock()
			r.broadcast("gameInfo", r.Info())
		case kickEvent:
			if r.metrics != nil {
				r.metrics.RoomKick(ev.Reason)
			}
			r.mu.Lock()
			c := r.clients[ev.Username]
			r.mu.Unlock()
			if c != nil {
				c.Send("leave", ev.Reason)
				c.Close(ev.Reason)
			}
			r.playerGone(ev.Username)
		case saveAccountEvent:
			if err := r.store.Save(context.Background(), ev.Account); err != nil {
				log.Printf("[%s] save account %s: %v", r.ID, ev.Account.Username, err)
			}
		case chatBroadcastEvent:
			r.broadcast("chatMessage", ev.Message.Sections)
		case pongEvent:
			r.sendTo(ev.Username, "pong", nil)
		case playerGoneEvent:
			r.playerGone(ev.Username)
		case endedEvent:
			r.finish(ev.Err)
			return
		}
	}
}

func (r *Room) broadcast(event string, data any) {
	r.mu.Lock()
	clients := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()
	for _, c := range clients {
		c.Send(event, data)
	}
}

func (r *Room) sendTo(username, event string, data any) {
	r.mu.Lock()
	c := r.clients[username]
	r.mu.Unlock()
	if c != nil {
		c.Send(event, data)
	}
}

// finish tears the hub side down after the worker exited.
func (r *Room) finish(err error) {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.ended = true
	r.endErr = err
	clients := r.clients
	r.clients = make(map[string]Client)
	pending := r.pending
	r.pending = make(map[string]pendingAuth)
	reserved := r.reserved
	r.reserved = make(map[string]bool)
	listeners := r.endListeners
	r.endListeners = nil
	r.mu.Unlock()

	for _, auth := range pending {
		auth.timer.Stop()
	}
	for _, c := range clients {
		c.Send("gameEnd", nil)
		c.Close("game ended")
	}
	if r.onPlayerGone != nil {
		for username := range reserved {
			r.onPlayerGone(username)
		}
	}
	for _, fn := range listeners {
		fn(err)
	}
}

// workerState is everything the worker goroutine owns.
type workerState struct {
	room    *Room
	world   *game.World
	filter  *chat.Filter
	pending map[string]*accounts.Data
	loaded  map[string]bool
	votes   map[string]bool
	started bool
}

// runWorker is the room's isolated simulation loop: a single goroutine that
// owns the world and alternates between control messages and tick
// deadlines. A panic here is a worker fault: the hub drops the room and
// other rooms are unaffected.
func (r *Room) runWorker() {
	var faulted error
	defer func() {
		if rec := recover(); rec != nil {
			faulted = fmt.Errorf("worker fault: %v", rec)
			log.Printf("[%s] %v", r.ID, faulted)
		}
		r.logs.Close(logHandshakeWait)
		r.events <- endedEvent{Err: faulted}
	}()

	if err := r.logs.Handshake(logHandshakeWait); err != nil {
		log.Printf("[%s] log channel handshake: %v", r.ID, err)
	}

	ws := &workerState{
		room: r,
		world: game.NewWorld(r.library, game.WorldOptions{
			Resolution: r.cfg.Game.PhysicsResolution,
			ChunkSize:  r.cfg.Game.ChunkSize,
			MaxPlayers: r.Options.MaxPlayers,
			Seed:       time.Now().UnixNano(),
		}),
		filter:  chat.NewFilter(r.cfg.Chat),
		pending: make(map[string]*accounts.Data),
		loaded:  make(map[string]bool),
		votes:   make(map[string]bool),
	}
	ws.world.OnKick(func(p *game.Player, reason string) {
		r.events <- kickEvent{Username: p.Account.Username, Reason: reason}
		r.events <- saveAccountEvent{Account: p.Account}
		r.events <- playerGoneEvent{Username: p.Account.Username}
	})

	period := time.Second / time.Duration(r.cfg.Game.TickRate)
	timer := time.NewTimer(period)
	defer timer.Stop()

	var (
		startedAt time.Time
		lastWarn  time.Time
		tickTimes []time.Time
	)

	for {
		select {
		case msg := <-r.control:
			if done, reason := ws.handleControl(msg); done {
				ws.shutdown(reason)
				return
			}

		case <-timer.C:
			tickStart := time.Now()
			if ws.started {
				if startedAt.IsZero() {
					startedAt = tickStart
				}
				ws.world.NextTick()

				tickTimes = append(tickTimes, time.Now())
				if len(tickTimes) > r.cfg.Game.TickRate {
					tickTimes = tickTimes[1:]
				}
				tps := float64(r.cfg.Game.TickRate)
				if n := len(tickTimes); n > 1 {
					if window := tickTimes[n-1].Sub(tickTimes[0]); window > 0 {
						tps = float64(n-1) / window.Seconds()
					}
				}

				r.events <- snapshotEvent{Snapshot: ws.world.Snapshot(tps)}
				if r.metrics != nil {
					r.metrics.ObserveTickDuration(time.Since(tickStart).Seconds())
				}

				if tps < tpsWarnThreshold &&
					time.Since(startedAt) > tpsWarnGrace &&
					time.Since(lastWarn) > tpsWarnInterval {
					lastWarn = time.Now()
					ws.logf(LogWarn, "tick rate degraded: %.1f TPS", tps)
				}

				if len(ws.world.Players()) < minRunningPlayers {
					ws.shutdown("Not enough players")
					return
				}
			}

			// Sleep the remainder of the period; an overrun tick simply
			// delays the next one, the loop never tries to catch up.
			sleep := period - time.Since(tickStart)
			if sleep < 0 {
				sleep = 0
			}
			timer.Reset(sleep)
		}
	}
}

// handleControl processes one hub message. Returns done=true when the
// worker should shut down.
func (ws *workerState) handleControl(msg controlMessage) (bool, string) {
	r := ws.room
	switch msg := msg.(type) {
	case joinPlayerMsg:
		ws.pending[msg.Account.Username] = msg.Account

	case dropPendingMsg:
		delete(ws.pending, msg.Username)

	case connectPlayerMsg:
		account, ok := ws.pending[msg.Username]
		if !ok {
			return false, ""
		}
		delete(ws.pending, msg.Username)
		p, err := ws.world.AddPlayer(account)
		if err != nil {
			ws.logf(LogError, "add player %s: %v", msg.Username, err)
			return false, ""
		}
		r.events <- initPhysicsEvent{Username: msg.Username, Properties: p.Properties}

	case playerInputMsg:
		if p := ws.world.PlayerByUsername(msg.Username); p != nil {
			p.PhysicsTick(ws.world, msg.Input)
		}

	case chatMessageMsg:
		if !ws.filter.Allow(msg.Username) {
			return false, ""
		}
		text := ws.filter.Clean(msg.Text)
		r.events <- chatBroadcastEvent{Message: chat.PlayerMessage(msg.Username, text)}

	case pingMsg:
		r.events <- pongEvent{Username: msg.Username}

	case readyMsg:
		ws.loaded[msg.Username] = true

	case readyStartMsg:
		ws.votes[msg.Username] = msg.Ready
		ws.maybeStart()

	case disconnectMsg:
		ws.dropPlayer(msg.Username)
		if ws.started && len(ws.world.Players()) < minRunningPlayers {
			return true, "Not enough players"
		}

	case shutdownMsg:
		return true, "shutdown requested"
	}
	return false, ""
}

// maybeStart begins the match once every connected player voted ready.
func (ws *workerState) maybeStart() {
	if ws.started {
		return
	}
	players := ws.world.Players()
	if len(players) < minRunningPlayers {
		return
	}
	for _, p := range players {
		if !ws.votes[p.Account.Username] {
			return
		}
	}

	m := ws.pickMap()
	if m == nil {
		ws.logf(LogError, "no maps available, cannot start")
		return
	}
	ws.world.SetMap(m)
	ws.world.SpreadPlayers()
	ws.world.SpawnLootBoxes()
	ws.started = true
	ws.logf(LogInfo, "game started on map %s with %d players", m.ID, len(players))
	ws.room.events <- gameStartEvent{MapID: m.ID}
}

func (ws *workerState) pickMap() *tilemap.Map {
	lib := ws.world.Library()
	if lib == nil {
		return nil
	}
	if pool, ok := lib.RandomPool(ws.world.RNG()); ok {
		if m, ok := lib.RandomInPool(ws.world.RNG(), pool); ok {
			return m
		}
	}
	m, _ := lib.RandomInPool(ws.world.RNG(), tilemap.PoolAll)
	return m
}

// dropPlayer removes a player (or pending player) and persists its account.
func (ws *workerState) dropPlayer(username string) {
	r := ws.room
	if account, ok := ws.pending[username]; ok {
		delete(ws.pending, username)
		r.events <- saveAccountEvent{Account: account}
		r.events <- playerGoneEvent{Username: username}
		return
	}
	if p := ws.world.PlayerByUsername(username); p != nil {
		ws.world.RemovePlayer(p.ID)
		r.events <- saveAccountEvent{Account: p.Account}
		r.events <- playerGoneEvent{Username: username}
	}
	delete(ws.loaded, username)
	delete(ws.votes, username)
	ws.filter.Forget(username)
}

// shutdown persists every account before the worker exits. Clients must
// stay attached here: finish closes the sockets and releases the seats once
// the hub sees endedEvent.
func (ws *workerState) shutdown(reason string) {
	ws.logf(LogInfo, "shutting down: %s", reason)
	for _, p := range ws.world.Players() {
		ws.room.events <- saveAccountEvent{Account: p.Account}
	}
	for _, account := range ws.pending {
		ws.room.events <- saveAccountEvent{Account: account}
	}
}

// logf logs through the forwarded channel, falling back to the process log
// when the channel is down.
func (ws *workerState) logf(method LogMethod, format string, args ...any) {
	if err := ws.room.logs.Logf(method, format, args...); err != nil {
		log.Printf("[%s] %s %s", ws.room.ID, method, fmt.Sprintf(format, args...))
	}
}
