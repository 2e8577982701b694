// Package room is the runtime around one game: the worker goroutine that
// owns the simulation and drives the 40 Hz tick loop, the hub-side join and
// socket fan-out, the framed log channel between them, and the manager that
// tracks every live room.
//
// A room's worker and the hub communicate only through typed messages; the
// worker's world is never touched from outside.
package room

import (
	"github.com/spsquared/battleboxes-server/internal/accounts"
	"github.com/spsquared/battleboxes-server/internal/chat"
	"github.com/spsquared/battleboxes-server/internal/game"
)

// controlMessage is a hub-to-worker command.
type controlMessage interface{ isControl() }

// joinPlayerMsg hands a loaded account to the worker ahead of the socket
// connecting. The player is pending until the auth code is redeemed.
type joinPlayerMsg struct{ Account *accounts.Data }

// dropPendingMsg retracts a pending player whose auth code expired unused.
type dropPendingMsg struct{ Username string }

// connectPlayerMsg promotes a pending player after its socket connected.
type connectPlayerMsg struct{ Username string }

// playerInputMsg carries one client physics tick packet.
type playerInputMsg struct {
	Username string
	Input    game.TickInput
}

// chatMessageMsg relays a chat line from a client.
type chatMessageMsg struct {
	Username string
	Text     string
}

// pingMsg requests a pong for the named client.
type pingMsg struct{ Username string }

// readyMsg marks a client as done loading the map.
type readyMsg struct{ Username string }

// readyStartMsg toggles a player's ready-to-start vote.
type readyStartMsg struct {
	Username string
	Ready    bool
}

// disconnectMsg removes a player after its socket dropped.
type disconnectMsg struct{ Username string }

// shutdownMsg asks the worker to stop ticking and exit.
type shutdownMsg struct{}

func (joinPlayerMsg) isControl()    {}
func (dropPendingMsg) isControl()   {}
func (connectPlayerMsg) isControl() {}
func (playerInputMsg) isControl()   {}
func (chatMessageMsg) isControl()   {}
func (pingMsg) isControl()          {}
func (readyMsg) isControl()         {}
func (readyStartMsg) isControl()    {}
func (disconnectMsg) isControl()    {}
func (shutdownMsg) isControl()      {}

// workerEvent is a worker-to-hub notification.
type workerEvent interface{ isEvent() }

// snapshotEvent carries one completed tick for broadcast.
type snapshotEvent struct{ Snapshot game.TickSnapshot }

// initPhysicsEvent tells one client its starting physics properties.
type initPhysicsEvent struct {
	Username   string
	Properties game.Properties
}

// gameStartEvent announces that the match began on the named map.
type gameStartEvent struct{ MapID string }

// kickEvent reports an anticheat kick; the hub closes the socket.
type kickEvent struct {
	Username string
	Reason   string
}

// saveAccountEvent asks the hub to persist a removed player's account.
type saveAccountEvent struct{ Account *accounts.Data }

// chatBroadcastEvent fans a chat line out to every client.
type chatBroadcastEvent struct{ Message chat.Message }

// pongEvent answers a ping.
type pongEvent struct{ Username string }

// playerGoneEvent reports that a username left the worker's world for any
// reason; the hub releases its cross-room reservation.
type playerGoneEvent struct{ Username string }

// endedEvent is the worker's final message before exiting. Err is non-nil
// when the worker died to a fault rather than a requested shutdown.
type endedEvent struct{ Err error }

func (snapshotEvent) isEvent()      {}
func (initPhysicsEvent) isEvent()   {}
func (gameStartEvent) isEvent()     {}
func (kickEvent) isEvent()          {}
func (saveAccountEvent) isEvent()   {}
func (chatBroadcastEvent) isEvent() {}
func (pongEvent) isEvent()          {}
func (playerGoneEvent) isEvent()    {}
func (endedEvent) isEvent()         {}
