package game

import (
	"math"
	"testing"

	"github.com/spsquared/battleboxes-server/internal/accounts"
)

func testWorld(t *testing.T) *World {
	t.Helper()
	w := NewWorld(nil, WorldOptions{
		Resolution: 64,
		ChunkSize:  8,
		MaxPlayers: 8,
		Seed:       1,
	})
	w.SetMap(buildTestMap(t))
	return w
}

func addTestPlayer(t *testing.T, w *World, username string) *Player {
	t.Helper()
	p, err := w.AddPlayer(&accounts.Data{Username: username})
	if err != nil {
		t.Fatalf("AddPlayer(%s): %v", username, err)
	}
	return p
}

// drainOverride emits two snapshots so the override flag from the spawn
// teleport clears before a test makes its own assertions.
func drainOverride(w *World) {
	for i := 0; i < 2; i++ {
		w.NextTick()
		w.Snapshot(0)
	}
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestStepVelocityGrounded(t *testing.T) {
	props := BaseProperties()
	edges := ContactEdges{Bottom: 1}

	vx, vy := StepVelocity(props, edges, InputKeys{Right: true}, 0, 0, 0)
	approx(t, "vx", vx, props.MovePower*props.Grip)
	approx(t, "vy", vy, -props.Gravity)

	vx, vy = StepVelocity(props, edges, InputKeys{Right: true, Up: true}, 0, 0, 0)
	approx(t, "vx with jump", vx, props.MovePower*props.Grip)
	approx(t, "vy with jump", vy, props.JumpPower-props.Gravity)
}

func TestStepVelocityWallJump(t *testing.T) {
	props := BaseProperties()
	// Hugging a left wall of friction 1 and pressing into it while jumping.
	edges := ContactEdges{Left: 1}
	in := InputKeys{Left: true, Up: true}

	vx, vy := StepVelocity(props, edges, in, 0, 0, 0)

	// Pushed away from the wall (moveInput is -1, so vx increases)...
	approx(t, "vx", vx, props.JumpPower*props.Grip*props.WallJumpPower)
	// ...and up.
	approx(t, "vy", vy, props.JumpPower*props.Grip-props.Gravity)
}

func TestStepVelocityWallSlideDown(t *testing.T) {
	props := BaseProperties()
	edges := ContactEdges{Left: 1}
	in := InputKeys{Left: true} // pressing into the wall, no jump

	_, vy := StepVelocity(props, edges, in, 0, 0, -1)

	// Falling speed is cut by surface drag along the wall plus wall drag.
	want := -1 * math.Pow(props.Drag, 1) * props.AirDrag * props.WallDrag
	want -= props.Gravity
	approx(t, "vy", vy, want)
}

func TestStepVelocityAirborne(t *testing.T) {
	props := BaseProperties()

	vx, vy := StepVelocity(props, ContactEdges{}, InputKeys{Right: true}, 0, 0, 0)
	approx(t, "vx", vx, props.AirMovePower)
	approx(t, "vy", vy, -props.Gravity)
}

func TestPhysicsTickOverride(t *testing.T) {
	w := testWorld(t)
	p := addTestPlayer(t, w, "sam")
	drainOverride(w)

	// A packet whose claimed end position disagrees with the server's
	// computed one flags the next two broadcast snapshots, in the order the
	// room loop produces them: tick first, then snapshot.
	p.PhysicsTick(w, TickInput{
		Tick:     w.Tick() + 1,
		Position: TickPosition{EndX: p.X + 100, EndY: p.Y},
	})

	var flags []bool
	for i := 0; i < 3; i++ {
		w.NextTick()
		snap := w.Snapshot(40)
		if len(snap.Players) != 1 {
			t.Fatalf("snapshot has %d players, want 1", len(snap.Players))
		}
		flags = append(flags, snap.Players[0].OverridePosition)
	}
	want := []bool{true, true, false}
	for i := range want {
		if flags[i] != want[i] {
			t.Fatalf("override flags across snapshots = %v, want %v", flags, want)
		}
	}
}

func TestPhysicsTickAgreement(t *testing.T) {
	w := testWorld(t)
	p := addTestPlayer(t, w, "sam")
	drainOverride(w)

	// Re-simulate what the server will compute and claim exactly that.
	ghost := *p
	ghost.VX, ghost.VY = StepVelocity(ghost.Properties, ghost.ContactEdges, InputKeys{}, ghost.Angle, ghost.VX, ghost.VY)
	ghost.nextPosition(w.CurrentMap(), w.Resolution())

	p.PhysicsTick(w, TickInput{
		Tick:     w.Tick(),
		Position: TickPosition{EndX: ghost.X, EndY: ghost.Y},
	})

	if p.TickData().OverridePosition {
		t.Error("matching end position must not trigger an override")
	}
}

func TestTickLeadKick(t *testing.T) {
	w := testWorld(t)
	p := addTestPlayer(t, w, "sam")

	var kicked string
	w.OnKick(func(_ *Player, reason string) { kicked = reason })

	// Claim a tick far ahead of the server clock, then let background
	// ticks accrue infractions.
	p.PhysicsTick(w, TickInput{Tick: 1000, Position: TickPosition{EndX: p.X, EndY: p.Y}})

	ticks := 0
	for kicked == "" && ticks < maxFastTickInfractions+5 {
		w.NextTick()
		ticks++
	}

	if kicked != KickTooFast {
		t.Fatalf("kick reason %q, want %q", kicked, KickTooFast)
	}
	if _, ok := w.Players()[p.ID]; ok {
		t.Error("kicked player still in world")
	}
	if len(p.Account.Infractions) != 1 || p.Account.Infractions[0].Reason != KickTooFast {
		t.Errorf("infraction not recorded: %+v", p.Account.Infractions)
	}
}

func TestTickLagKick(t *testing.T) {
	w := testWorld(t)
	p := addTestPlayer(t, w, "sam")

	var kicked string
	w.OnKick(func(_ *Player, reason string) { kicked = reason })

	// Never send input; once the server clock is more than maxTickLag
	// ahead, infractions accrue to the slow threshold.
	for i := 0; i < maxTickLag+maxSlowTickInfractions+10 && kicked == ""; i++ {
		w.NextTick()
	}

	if kicked != KickTooSlow {
		t.Fatalf("kick reason %q, want %q", kicked, KickTooSlow)
	}
	if _, ok := w.Players()[p.ID]; ok {
		t.Error("kicked player still in world")
	}
}

func TestBadModifiersKick(t *testing.T) {
	w := testWorld(t)
	p := addTestPlayer(t, w, "sam")

	var kicked string
	w.OnKick(func(_ *Player, reason string) { kicked = reason })

	p.PhysicsTick(w, TickInput{
		Tick:      1,
		Modifiers: []int{42},
		Position:  TickPosition{EndX: p.X, EndY: p.Y},
	})

	if kicked != KickBadModifiers {
		t.Fatalf("kick reason %q, want %q", kicked, KickBadModifiers)
	}
}

func TestModifierLifecycle(t *testing.T) {
	w := testWorld(t)
	p := addTestPlayer(t, w, "sam")

	id := p.GrantModifier(ModMoveBoost)
	base := BaseProperties()
	approx(t, "movePower after grant", p.Properties.MovePower, base.MovePower*2)

	// The instance only ages once the client acknowledges it. The client
	// stops listing the id on the tick it expires, exactly as the server
	// will drop it.
	p.PhysicsTick(w, TickInput{Tick: 1, Modifiers: []int{id}})
	for i := 0; i < ModifierDuration+2; i++ {
		var mods []int
		if inst, held := p.modifiers[id]; held && inst.Remaining > 1 {
			mods = []int{id}
		}
		p.PhysicsTick(w, TickInput{Tick: uint64(i) + 2, Modifiers: mods})
		if _, held := p.modifiers[id]; !held {
			break
		}
	}

	if _, held := p.modifiers[id]; held {
		t.Fatal("modifier should have expired")
	}
	approx(t, "movePower after expiry", p.Properties.MovePower, base.MovePower)
}

func TestFlightMode(t *testing.T) {
	w := testWorld(t)
	p := addTestPlayer(t, w, "sam")
	p.Teleport(5.5, 4.0)
	w.playerMoved(p)

	id := p.GrantModifier(ModFlight)
	if !p.Properties.Fly {
		t.Fatal("flight modifier should set fly")
	}

	before := p.Y
	p.PhysicsTick(w, TickInput{Tick: 1, Modifiers: []int{id}, Inputs: InputKeys{Up: true}})

	approx(t, "vy", p.VY, p.Properties.MovePower)
	if p.VX != 0 {
		t.Errorf("vx = %v, want 0", p.VX)
	}
	if p.Y <= before {
		t.Error("flying player should have risen")
	}
}

func TestServerWritesForceOverride(t *testing.T) {
	w := testWorld(t)
	p := addTestPlayer(t, w, "sam")
	drainOverride(w)

	if p.TickData().OverridePosition {
		t.Fatal("override should have drained")
	}
	p.SetServerVelocity(1, 0)
	if !p.TickData().OverridePosition {
		t.Error("SetServerVelocity must mark an override")
	}
}
