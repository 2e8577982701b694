package game

import (
	"math"

	"github.com/spsquared/battleboxes-server/internal/accounts"
)

// Kick reasons recorded in account infractions and reported to the client.
const (
	KickTooFast      = "client_too_fast"
	KickTooSlow      = "client_too_slow"
	KickBadModifiers = "bad_modifiers"
)

// Anticheat thresholds, all in ticks. A client may run ahead of the server
// (network jitter, prediction) or behind it (lag); past these bounds each
// global tick accrues an infraction until the kick threshold.
const (
	maxTickLead             = 40
	maxTickLag              = 80
	maxFastTickInfractions  = 10
	maxSlowTickInfractions  = 20
	infractionDecayInterval = 20
)

// playerHP is the number of projectile hits a player survives.
const playerHP = 3

// Properties are the tunable movement physics of one player. The client
// runs the identical ruleset for prediction, so any change here is a
// protocol change.
type Properties struct {
	Gravity       float64 `json:"gravity"`
	MovePower     float64 `json:"movePower"`
	JumpPower     float64 `json:"jumpPower"`
	WallJumpPower float64 `json:"wallJumpPower"`
	AirMovePower  float64 `json:"airMovePower"`
	Drag          float64 `json:"drag"`
	AirDrag       float64 `json:"airDrag"`
	WallDrag      float64 `json:"wallDrag"`
	Grip          float64 `json:"grip"`
	Fly           bool    `json:"fly"`
}

// BaseProperties returns the movement physics every player starts from.
func BaseProperties() Properties {
	return Properties{
		Gravity:       0.05,
		MovePower:     0.06,
		JumpPower:     0.4,
		WallJumpPower: 0.8,
		AirMovePower:  0.01,
		Drag:          0.55,
		AirDrag:       0.95,
		WallDrag:      0.85,
		Grip:          0.9,
	}
}

// playerSize is the edge length of the player's collision box in tiles.
const playerSize = 0.75

// PlayerColors is the fixed palette colours are drawn from; each player in
// a room gets a distinct index.
var PlayerColors = []string{
	"#f94144", "#f3722c", "#f9c74f", "#90be6d",
	"#43aa8b", "#577590", "#9d4edd", "#f72585",
}

// InputKeys are the four control booleans of one client tick.
type InputKeys struct {
	Left  bool `json:"left"`
	Right bool `json:"right"`
	Up    bool `json:"up"`
	Down  bool `json:"down"`
}

// TickPosition is the end-of-tick position the client computed for itself.
type TickPosition struct {
	EndX float64 `json:"endx"`
	EndY float64 `json:"endy"`
}

// TickInput is one client physics tick packet.
type TickInput struct {
	Tick      uint64       `json:"tick"`
	Modifiers []int        `json:"modifiers"`
	Inputs    InputKeys    `json:"inputs"`
	Position  TickPosition `json:"position"`
}

// Player is an entity driven by client input packets under lockstep
// validation: the server re-simulates every packet and overrides the client
// when the computed end position disagrees.
type Player struct {
	Entity
	Account *accounts.Data
	Color   int
	Weapon  ProjectileType

	Properties Properties
	HP         int

	modifiers      map[int]*ModifierInstance
	nextModifierID int

	clientTick      uint64
	fastInfractions int
	slowInfractions int
	overrideTicks   int
}

func newPlayer(id uint64, account *accounts.Data, color int) *Player {
	return &Player{
		Entity:     newEntity(id, 0, 0, playerSize, playerSize),
		Account:    account,
		Color:      color,
		Weapon:     ProjectileBullet,
		Properties: BaseProperties(),
		HP:         playerHP,
		modifiers:  make(map[int]*ModifierInstance),
	}
}

// GrantModifier gives the player a modifier instance. It stays inert until
// the client lists its id in a tick packet.
func (p *Player) GrantModifier(m Modifier) int {
	id := p.nextModifierID
	p.nextModifierID++
	p.modifiers[id] = &ModifierInstance{Modifier: m, Remaining: ModifierDuration}
	p.refreshProperties()
	return id
}

// refreshProperties recomputes the effective properties from base plus
// every currently held modifier.
func (p *Player) refreshProperties() {
	props := BaseProperties()
	for _, inst := range p.modifiers {
		inst.Modifier.apply(&props)
	}
	p.Properties = props
}

// markOverride flags the next two outgoing snapshots so the client
// hard-snaps to the server position; the counter is consumed as snapshots
// are emitted, not as ticks pass. Any server-initiated position or velocity
// write must call this.
func (p *Player) markOverride() { p.overrideTicks = 2 }

// Teleport moves the player under server authority.
func (p *Player) Teleport(x, y float64) {
	p.SetPosition(x, y)
	p.markOverride()
}

// SetServerVelocity writes velocity under server authority.
func (p *Player) SetServerVelocity(vx, vy float64) {
	p.VX, p.VY = vx, vy
	p.markOverride()
}

// StepVelocity is the pure movement ruleset shared (in behaviour) with the
// client's prediction: given the effective properties, the current contact
// edges, the inputs, and the angle, it maps a velocity to the next one.
// Order matters and must not be rearranged.
func StepVelocity(props Properties, edges ContactEdges, in InputKeys, angle, vx, vy float64) (float64, float64) {
	// Surface drag, scaled by the friction of the touched surfaces.
	vx *= math.Pow(props.Drag, edges.Top+edges.Bottom)
	vy *= math.Pow(props.Drag, edges.Left+edges.Right)

	vx *= props.AirDrag
	vy *= props.AirDrag

	var moveInput float64
	if in.Right {
		moveInput++
	}
	if in.Left {
		moveInput--
	}

	wallFriction := edges.Left + edges.Right
	switch {
	case edges.Left*moveInput < 0 || edges.Right*moveInput > 0:
		// Pushing into a wall.
		vy *= math.Pow(props.WallDrag, wallFriction)
		if in.Up || (in.Down && edges.Bottom == 0) {
			vx -= moveInput * props.JumpPower * props.Grip * wallFriction * props.WallJumpPower
			if in.Up {
				vy += props.JumpPower * props.Grip * wallFriction
			}
		}
	case edges.Bottom != 0:
		vx += moveInput * props.MovePower * props.Grip * edges.Bottom
		if in.Up {
			vy += props.JumpPower
		}
	default:
		vx += moveInput * props.AirMovePower
	}

	// Gravity follows the entity's orientation.
	vy -= props.Gravity * math.Cos(angle)
	vx += props.Gravity * math.Sin(angle)

	return vx, vy
}

// PhysicsTick runs one client-driven physics step from an input packet.
// This is independent of the global tick loop; it runs once per packet, in
// packet arrival order.
func (p *Player) PhysicsTick(w *World, in TickInput) {
	p.clientTick = in.Tick

	// Age activated modifiers, dropping expired ones.
	dropped := false
	for id, inst := range p.modifiers {
		if !inst.Activated {
			continue
		}
		inst.Remaining--
		if inst.Remaining <= 0 {
			delete(p.modifiers, id)
			dropped = true
		}
	}
	// Activate every modifier the client acknowledges. An unknown id means
	// the client is claiming a modifier it does not hold.
	for _, id := range in.Modifiers {
		inst, ok := p.modifiers[id]
		if !ok {
			w.KickPlayer(p, KickBadModifiers)
			return
		}
		inst.Activated = true
	}
	if dropped {
		p.refreshProperties()
	}

	startX, startY := p.X, p.Y

	if p.Properties.Fly {
		// Free flight: velocity is the unit input vector scaled by movePower.
		var dx, dy float64
		if in.Inputs.Right {
			dx++
		}
		if in.Inputs.Left {
			dx--
		}
		if in.Inputs.Up {
			dy++
		}
		if in.Inputs.Down {
			dy--
		}
		if mag := math.Hypot(dx, dy); mag > 0 {
			dx, dy = dx/mag, dy/mag
		}
		p.VX = dx * p.Properties.MovePower
		p.VY = dy * p.Properties.MovePower
	} else {
		if in.Inputs.Up {
			if p.ContactEdges.Bottom != 0 {
				p.Account.Trackers.Jumps++
			} else if p.ContactEdges.Left != 0 || p.ContactEdges.Right != 0 {
				p.Account.Trackers.WallJumps++
			}
		}
		p.VX, p.VY = StepVelocity(p.Properties, p.ContactEdges, in.Inputs, p.Angle, p.VX, p.VY)
	}

	p.nextPosition(w.CurrentMap(), w.Resolution())
	w.playerMoved(p)

	p.Account.Trackers.DistanceMoved += int64(math.Hypot(p.X-startX, p.Y-startY))

	// Lockstep check: any disagreement with the client's self-computed end
	// position forces an override.
	if p.X != in.Position.EndX || p.Y != in.Position.EndY {
		p.markOverride()
	}
}

// backgroundTick runs once per global tick for every player, whether or not
// any input arrived: tick-drift accounting and infraction decay.
func (p *Player) backgroundTick(w *World) {
	serverTick := w.Tick()

	if p.clientTick > serverTick && p.clientTick-serverTick > maxTickLead {
		p.fastInfractions++
		if p.fastInfractions >= maxFastTickInfractions {
			w.KickPlayer(p, KickTooFast)
			return
		}
	}
	if serverTick > p.clientTick && serverTick-p.clientTick > maxTickLag {
		p.slowInfractions++
		if p.slowInfractions >= maxSlowTickInfractions {
			w.KickPlayer(p, KickTooSlow)
			return
		}
	}

	if serverTick%infractionDecayInterval == 0 {
		if p.fastInfractions > 0 {
			p.fastInfractions--
		}
		if p.slowInfractions > 0 {
			p.slowInfractions--
		}
	}
}

// damage applies one hit. At zero HP the player dies, loses held modifiers,
// and respawns at a random spawnpoint.
func (p *Player) damage(w *World, amount int, from *Player) {
	p.HP -= amount
	if p.HP > 0 {
		return
	}
	p.Account.Trackers.Deaths++
	if from != nil && from != p {
		from.Account.Trackers.Kills++
	}
	p.HP = playerHP
	p.modifiers = make(map[int]*ModifierInstance)
	p.refreshProperties()
	p.SetServerVelocity(0, 0)
	w.ToRandomSpawnpoint(p)
}
