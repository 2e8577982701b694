package game

import "math"

// outOfBoundsLimit is how far outside the map a projectile may drift, in
// tiles, before it is culled.
const outOfBoundsLimit = 20

// ProjectileType names a projectile template.
type ProjectileType int

const (
	ProjectileBullet ProjectileType = iota
	ProjectileShard
)

func (t ProjectileType) String() string {
	switch t {
	case ProjectileBullet:
		return "bullet"
	case ProjectileShard:
		return "shard"
	}
	return "unknown"
}

// projectileTemplate is the frozen per-type data and behaviour table. Move
// nil means linear flight (translation by constant velocity, nothing to do
// per tick). Hit hooks nil mean the defaults: remove on map hit; damage by
// one and remove on player hit.
type projectileTemplate struct {
	Width, Height float64
	Speed         float64

	CollidesPlayers     bool
	CollidesProjectiles bool

	Move            func(pr *Projectile, w *World)
	OnMapHit        func(pr *Projectile, w *World)
	OnPlayerHit     func(pr *Projectile, w *World, target *Player)
	OnProjectileHit func(pr *Projectile, w *World, other *Projectile)
}

var projectileTemplates = map[ProjectileType]projectileTemplate{
	ProjectileBullet: {
		Width: 0.5, Height: 0.2,
		Speed:           1.0,
		CollidesPlayers: true,
	},
	ProjectileShard: {
		Width: 0.3, Height: 0.3,
		Speed:               0.7,
		CollidesPlayers:     true,
		CollidesProjectiles: true,
	},
}

// Projectile is a template-driven entity owned by the player that fired it.
// The owner is referenced by id; it may be removed before the projectile.
type Projectile struct {
	Entity
	Type     ProjectileType
	Owner    uint64
	template projectileTemplate
}

// newProjectile builds a projectile at the owner's position. Construction
// velocity is a quarter of the owner's velocity plus the template speed
// along the firing angle.
func newProjectile(id uint64, t ProjectileType, owner *Player, angle float64) *Projectile {
	tmpl := projectileTemplates[t]
	pr := &Projectile{
		Entity:   newEntity(id, owner.X, owner.Y, tmpl.Width, tmpl.Height),
		Type:     t,
		Owner:    owner.ID,
		template: tmpl,
	}
	pr.Angle = angle
	pr.VX = owner.VX*0.25 + tmpl.Speed*math.Cos(angle)
	pr.VY = owner.VY*0.25 + tmpl.Speed*math.Sin(angle)
	pr.computeShape()
	return pr
}

// tick advances the projectile one global tick.
func (pr *Projectile) tick(w *World) {
	m := w.CurrentMap()
	if m != nil {
		limit := float64(outOfBoundsLimit)
		if pr.X < -limit || pr.X > float64(m.Width)+limit ||
			pr.Y < -limit || pr.Y > float64(m.Height)+limit {
			w.RemoveProjectile(pr.ID)
			return
		}
	}

	if pr.template.Move != nil {
		pr.template.Move(pr, w)
	}

	pr.nextPosition(m, w.Resolution())
	w.projectileMoved(pr)

	edges := pr.ContactEdges
	if edges.Left != 0 || edges.Right != 0 || edges.Top != 0 || edges.Bottom != 0 {
		if pr.template.OnMapHit != nil {
			pr.template.OnMapHit(pr, w)
		} else {
			w.RemoveProjectile(pr.ID)
		}
		return
	}

	if pr.template.CollidesPlayers {
		for _, id := range w.projectileChunks.InSameChunks(pr.ID, w.playerChunks) {
			if id == pr.Owner {
				continue
			}
			target, ok := w.players[id]
			if !ok || !polygonsIntersect(pr.verts, target.verts) {
				continue
			}
			if pr.template.OnPlayerHit != nil {
				pr.template.OnPlayerHit(pr, w, target)
			} else {
				if owner, ok := w.players[pr.Owner]; ok {
					owner.Account.Trackers.ShotsHit++
				}
				target.damage(w, 1, w.players[pr.Owner])
				w.RemoveProjectile(pr.ID)
			}
			return
		}
	}

	if pr.template.CollidesProjectiles {
		for _, id := range w.projectileChunks.InSameChunks(pr.ID, w.projectileChunks) {
			if id == pr.ID {
				continue
			}
			other, ok := w.projectiles[id]
			if !ok || !polygonsIntersect(pr.verts, other.verts) {
				continue
			}
			if pr.template.OnProjectileHit != nil {
				pr.template.OnProjectileHit(pr, w, other)
			} else {
				w.RemoveProjectile(other.ID)
				w.RemoveProjectile(pr.ID)
			}
			return
		}
	}
}
