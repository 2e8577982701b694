package game

import (
	"math"

	"github.com/spsquared/battleboxes-server/internal/tilemap"
)

// snapFactor is the over-push applied when snapping against a collision
// face. Slightly more than the exact separation so floating point rounding
// never leaves the box touching the face it just hit.
const snapFactor = 1.01

// ContactEdges holds the friction of whatever surface each side of an entity
// is touching after nextPosition. Zero means the direction is clear.
type ContactEdges struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// Entity is the shared kernel of every moving body: an oriented box with
// sub-stepped translation against the map collision grid. Concrete kinds
// (Player, Projectile, LootBox, LootBoxRespawn) embed it.
//
// The cached shape (cos/sin, bounding half-extents, world vertices) must be
// recomputed after any mutation of position, angle, or size; all mutations
// go through the Set* methods or nextPosition, which maintain it.
type Entity struct {
	ID     uint64  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"-"`
	Height float64 `json:"-"`
	Angle  float64 `json:"angle"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	VA     float64 `json:"va"`

	CollisionEnabled bool         `json:"-"`
	ContactEdges     ContactEdges `json:"-"`

	cos, sin       float64
	halfBW, halfBH float64
	verts          [4]Point
}

// newEntity builds a kernel with its shape cache primed.
func newEntity(id uint64, x, y, width, height float64) Entity {
	e := Entity{
		ID: id, X: x, Y: y,
		Width: width, Height: height,
		CollisionEnabled: true,
	}
	e.computeShape()
	return e
}

// computeShape refreshes the cached rotation terms, the axis-aligned
// bounding half-extents of the rotated box, and the four world-space
// vertices in clockwise order.
func (e *Entity) computeShape() {
	e.cos = math.Cos(e.Angle)
	e.sin = math.Sin(e.Angle)
	e.halfBW = (math.Abs(e.Width*e.cos) + math.Abs(e.Height*e.sin)) / 2
	e.halfBH = (math.Abs(e.Height*e.cos) + math.Abs(e.Width*e.sin)) / 2

	hw, hh := e.Width/2, e.Height/2
	local := [4]Point{
		{X: -hw, Y: hh}, {X: hw, Y: hh},
		{X: hw, Y: -hh}, {X: -hw, Y: -hh},
	}
	for i, c := range local {
		e.verts[i] = Point{
			X: e.X + c.X*e.cos - c.Y*e.sin,
			Y: e.Y + c.X*e.sin + c.Y*e.cos,
		}
	}
}

// vertsAt returns the entity's vertices as if centred at (x, y) with the
// current angle. Used for tentative positions during sub-stepping.
func (e *Entity) vertsAt(x, y float64) [4]Point {
	dx, dy := x-e.X, y-e.Y
	var out [4]Point
	for i, v := range e.verts {
		out[i] = Point{X: v.X + dx, Y: v.Y + dy}
	}
	return out
}

// SetPosition teleports the entity and refreshes the shape cache.
func (e *Entity) SetPosition(x, y float64) {
	e.X, e.Y = x, y
	e.computeShape()
}

// SetAngle rotates the entity and refreshes the shape cache.
func (e *Entity) SetAngle(angle float64) {
	e.Angle = angle
	e.computeShape()
}

// SetSize resizes the entity and refreshes the shape cache.
func (e *Entity) SetSize(width, height float64) {
	e.Width, e.Height = width, height
	e.computeShape()
}

// collidesWithMap tests the entity, as if centred at (x, y), against the map
// collision grid. Scans only cells the bounding box overlaps, rejects by
// axis separation, then runs the polygon test. Returns the first hit.
func (e *Entity) collidesWithMap(m *tilemap.Map, x, y float64) *tilemap.Collision {
	if m == nil || !e.CollisionEnabled {
		return nil
	}

	x0 := int(math.Floor(x - e.halfBW))
	x1 := int(math.Floor(x + e.halfBW))
	y0 := int(math.Floor(y - e.halfBH))
	y1 := int(math.Floor(y + e.halfBH))

	verts := e.vertsAt(x, y)
	for cy := y0; cy <= y1; cy++ {
		for cx := x0; cx <= x1; cx++ {
			for i, col := range m.CellCollisions(cx, cy) {
				if math.Abs(x-col.X) > e.halfBW+col.HalfW ||
					math.Abs(y-col.Y) > e.halfBH+col.HalfH {
					continue
				}
				if polygonsIntersect(verts, col.Verts) {
					cols := m.CellCollisions(cx, cy)
					return &cols[i]
				}
			}
		}
	}
	return nil
}

// nextPosition advances the entity by its velocity with sub-stepped
// collision resolution, then advances the angle and refreshes the contact
// edges. res is the physics resolution: the number of sub-steps per unit of
// the larger velocity component.
func (e *Entity) nextPosition(m *tilemap.Map, res int) {
	steps := int(math.Ceil(math.Max(math.Abs(e.VX), math.Abs(e.VY)) * float64(res)))
	if steps > 0 {
		sx := e.VX / float64(steps)
		sy := e.VY / float64(steps)

		for i := 0; i < steps; i++ {
			nx, ny := e.X+sx, e.Y+sy
			col := e.collidesWithMap(m, nx, ny)
			if col == nil {
				e.X, e.Y = nx, ny
				continue
			}

			colX := e.collidesWithMap(m, nx, e.Y)
			if colX == nil {
				// Horizontal slide: x advances, y is blocked.
				e.X = nx
				e.snapAxisY(col)
				e.VY, sy = 0, 0
				continue
			}

			colY := e.collidesWithMap(m, e.X, ny)
			if colY == nil {
				// Vertical slide: y advances, x is blocked.
				e.Y = ny
				e.snapAxisX(colX)
				e.VX, sx = 0, 0
				continue
			}

			// Stuck in a corner: snap out on both axes and stop.
			e.snapAxisX(colX)
			e.snapAxisY(colY)
			e.VX, e.VY = 0, 0
			break
		}
	}

	e.Angle += e.VA
	e.computeShape()
	e.probeContactEdges(m, res)
}

// snapAxisX moves the centre clear of a blocking collision along x, pushed
// snapFactor past exact separation, away from the obstacle.
func (e *Entity) snapAxisX(col *tilemap.Collision) {
	sep := snapFactor * (col.HalfW + e.halfBW)
	if e.X < col.X {
		e.X = col.X - sep
	} else {
		e.X = col.X + sep
	}
}

func (e *Entity) snapAxisY(col *tilemap.Collision) {
	sep := snapFactor * (col.HalfH + e.halfBH)
	if e.Y < col.Y {
		e.Y = col.Y - sep
	} else {
		e.Y = col.Y + sep
	}
}

// probeContactEdges tests one sub-step away in each direction and records
// the friction of whatever blocks it.
func (e *Entity) probeContactEdges(m *tilemap.Map, res int) {
	probe := 1 / float64(res)
	e.ContactEdges = ContactEdges{
		Left:   contactFriction(e.collidesWithMap(m, e.X-probe, e.Y)),
		Right:  contactFriction(e.collidesWithMap(m, e.X+probe, e.Y)),
		Top:    contactFriction(e.collidesWithMap(m, e.X, e.Y+probe)),
		Bottom: contactFriction(e.collidesWithMap(m, e.X, e.Y-probe)),
	}
}

func contactFriction(col *tilemap.Collision) float64 {
	if col == nil {
		return 0
	}
	return col.Friction
}
