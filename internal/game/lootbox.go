package game

import "github.com/spsquared/battleboxes-server/internal/tilemap"

// LootBoxRespawnDelay is how many ticks after pickup a map-spawned loot box
// comes back.
const LootBoxRespawnDelay = 800

// LootBox is a stationary unit-square pickup. On spawn it drops to the
// nearest ground and never moves again.
type LootBox struct {
	Entity
	Variant tilemap.LootBoxVariant

	// respawning marks boxes that came from map spawn descriptors; taking
	// one schedules a LootBoxRespawn at its resting position.
	respawning bool
}

func newLootBox(id uint64, x, y float64, variant tilemap.LootBoxVariant, respawning bool) *LootBox {
	return &LootBox{
		Entity:     newEntity(id, x, y, 1, 1),
		Variant:    variant,
		respawning: respawning,
	}
}

// settle drops the box onto the ground below its spawn point.
func (b *LootBox) settle(w *World) {
	b.VY = -1
	b.nextPosition(w.CurrentMap(), w.Resolution())
	b.VX, b.VY = 0, 0
}

// LootBoxRespawn is an invisible no-collision timer entity left behind by a
// taken loot box. It counts down and replaces itself with a fresh box of
// the same variant.
type LootBoxRespawn struct {
	Entity
	Variant   tilemap.LootBoxVariant
	Remaining int
}

func newLootBoxRespawn(id uint64, x, y float64, variant tilemap.LootBoxVariant) *LootBoxRespawn {
	r := &LootBoxRespawn{
		Entity:    newEntity(id, x, y, 1, 1),
		Variant:   variant,
		Remaining: LootBoxRespawnDelay,
	}
	r.CollisionEnabled = false
	return r
}

// tick counts the timer down and spawns the replacement box at zero.
func (r *LootBoxRespawn) tick(w *World) {
	r.Remaining--
	if r.Remaining > 0 {
		return
	}
	w.removeRespawnTimer(r.ID)
	w.spawnLootBox(r.X, r.Y, r.Variant, true)
}
