package game

// Modifier identifies one of the closed set of property modifiers a player
// can pick up. The coefficient table below is mirrored by the client's
// prediction code; both sides must compute identical effective properties.
type Modifier int

const (
	ModMoveBoost Modifier = iota // movePower x2
	ModJumpBoost                 // jumpPower x1.5
	ModLowGravity                // gravity x0.5
	ModSlickShoes                // grip x0.5
	ModWallGrip                  // wallDrag x0.5
	ModFlight                    // fly enabled

	modifierCount
)

// ModifierDuration is how many ticks a picked-up modifier lasts.
const ModifierDuration = 400

// Valid reports whether m names a real modifier variant.
func (m Modifier) Valid() bool { return m >= 0 && m < modifierCount }

func (m Modifier) String() string {
	switch m {
	case ModMoveBoost:
		return "move_boost"
	case ModJumpBoost:
		return "jump_boost"
	case ModLowGravity:
		return "low_gravity"
	case ModSlickShoes:
		return "slick_shoes"
	case ModWallGrip:
		return "wall_grip"
	case ModFlight:
		return "flight"
	}
	return "unknown"
}

// apply mutates an effective property struct for one active modifier.
func (m Modifier) apply(p *Properties) {
	switch m {
	case ModMoveBoost:
		p.MovePower *= 2
	case ModJumpBoost:
		p.JumpPower *= 1.5
	case ModLowGravity:
		p.Gravity *= 0.5
	case ModSlickShoes:
		p.Grip *= 0.5
	case ModWallGrip:
		p.WallDrag *= 0.5
	case ModFlight:
		p.Fly = true
	}
}

// ModifierInstance is one modifier a player currently holds, keyed by a
// per-player instance id. A freshly granted instance is inert until the
// client acknowledges it in a tick packet (activated), at which point it
// starts aging.
type ModifierInstance struct {
	Modifier  Modifier
	Remaining int
	Activated bool
}
