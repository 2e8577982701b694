package game

// ModifierData is one held modifier as serialised into snapshots.
type ModifierData struct {
	ID       int `json:"id"`
	Modifier int `json:"modifier"`
	Length   int `json:"length"`
}

// PlayerTickData is one player's state in an outgoing snapshot. The
// overridePosition flag tells the client to discard its predicted position
// and hard-snap to the server's.
type PlayerTickData struct {
	ID       uint64  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Angle    float64 `json:"angle"`
	VX       float64 `json:"vx"`
	VY       float64 `json:"vy"`
	VA       float64 `json:"va"`
	Username string  `json:"username"`
	Color    int     `json:"color"`

	Properties Properties     `json:"properties"`
	Modifiers  []ModifierData `json:"modifiers"`

	OverridePosition bool `json:"overridePosition"`
}

// TickSnapshot is the per-tick broadcast to every client in a room.
type TickSnapshot struct {
	Tick    uint64           `json:"tick"`
	TPS     float64          `json:"tps"`
	Players []PlayerTickData `json:"players"`
}

// TickData serialises a player for the current tick.
func (p *Player) TickData() PlayerTickData {
	mods := make([]ModifierData, 0, len(p.modifiers))
	for id, inst := range p.modifiers {
		mods = append(mods, ModifierData{
			ID:       id,
			Modifier: int(inst.Modifier),
			Length:   inst.Remaining,
		})
	}
	return PlayerTickData{
		ID:               p.ID,
		X:                p.X,
		Y:                p.Y,
		Angle:            p.Angle,
		VX:               p.VX,
		VY:               p.VY,
		VA:               p.VA,
		Username:         p.Account.Username,
		Color:            p.Color,
		Properties:       p.Properties,
		Modifiers:        mods,
		OverridePosition: p.overrideTicks > 0,
	}
}

// Snapshot captures the world after a completed tick. tps is the measured
// tick rate the room reports alongside. Emitting a snapshot consumes one
// override tick per player, so a marked player carries overridePosition in
// exactly the next two snapshots sent.
func (w *World) Snapshot(tps float64) TickSnapshot {
	snap := TickSnapshot{
		Tick:    w.tick,
		TPS:     tps,
		Players: make([]PlayerTickData, 0, len(w.players)),
	}
	for _, id := range sortedKeys(w.players) {
		p := w.players[id]
		snap.Players = append(snap.Players, p.TickData())
		if p.overrideTicks > 0 {
			p.overrideTicks--
		}
	}
	return snap
}
