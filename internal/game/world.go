package game

import (
	"fmt"
	"log"
	"math/rand"
	"sort"

	"github.com/spsquared/battleboxes-server/internal/accounts"
	"github.com/spsquared/battleboxes-server/internal/tilemap"
)

// World is one room's entire simulation state: the current map, every live
// entity keyed by numeric id, the per-kind chunk indices, and the global
// tick counter. A World is owned by exactly one room worker goroutine and
// is never shared; room isolation is instance scope.
type World struct {
	resolution int
	maxPlayers int

	library *tilemap.Library
	current *tilemap.Map

	tick   uint64
	nextID uint64
	rng    *rand.Rand

	players     map[uint64]*Player
	projectiles map[uint64]*Projectile
	lootBoxes   map[uint64]*LootBox
	respawns    map[uint64]*LootBoxRespawn

	playerChunks     *ChunkGrid
	projectileChunks *ChunkGrid
	lootBoxChunks    *ChunkGrid

	mapListeners []func(*tilemap.Map)

	// onKick lets the room runtime disconnect the socket and persist the
	// account before the player is dropped from the world.
	onKick func(p *Player, reason string)
}

// WorldOptions configure a new World.
type WorldOptions struct {
	Resolution int // physics sub-steps per velocity unit
	ChunkSize  int // broad-phase chunk edge in tiles
	MaxPlayers int
	Seed       int64
}

// NewWorld creates an empty world over a map library.
func NewWorld(lib *tilemap.Library, opts WorldOptions) *World {
	if opts.Resolution < 1 {
		opts.Resolution = 1
	}
	if opts.ChunkSize < 1 {
		opts.ChunkSize = 8
	}
	return &World{
		resolution:       opts.Resolution,
		maxPlayers:       opts.MaxPlayers,
		library:          lib,
		rng:              rand.New(rand.NewSource(opts.Seed)),
		players:          make(map[uint64]*Player),
		projectiles:      make(map[uint64]*Projectile),
		lootBoxes:        make(map[uint64]*LootBox),
		respawns:         make(map[uint64]*LootBoxRespawn),
		playerChunks:     NewChunkGrid(opts.ChunkSize),
		projectileChunks: NewChunkGrid(opts.ChunkSize),
		lootBoxChunks:    NewChunkGrid(opts.ChunkSize),
	}
}

// Tick returns the global tick counter.
func (w *World) Tick() uint64 { return w.tick }

// Resolution returns the physics resolution.
func (w *World) Resolution() int { return w.resolution }

// CurrentMap returns the map the world is simulating on, or nil before the
// first SetMap.
func (w *World) CurrentMap() *tilemap.Map { return w.current }

// Library returns the shared map library.
func (w *World) Library() *tilemap.Library { return w.library }

// RNG returns the world's seeded random source.
func (w *World) RNG() *rand.Rand { return w.rng }

// OnKick registers the handler invoked when a player is kicked, before
// removal.
func (w *World) OnKick(fn func(p *Player, reason string)) { w.onKick = fn }

// OnMapChange registers a listener fired whenever the current map changes.
func (w *World) OnMapChange(fn func(*tilemap.Map)) {
	w.mapListeners = append(w.mapListeners, fn)
}

// SetMap switches the current map. Chunk indices are rebuilt from scratch;
// grids keyed to the old map must never be queried against the new one.
func (w *World) SetMap(m *tilemap.Map) {
	w.current = m

	w.playerChunks.Reset()
	w.projectileChunks.Reset()
	w.lootBoxChunks.Reset()
	for _, p := range w.players {
		w.playerMoved(p)
	}
	for _, pr := range w.projectiles {
		w.projectileMoved(pr)
	}
	for _, b := range w.lootBoxes {
		w.lootBoxChunks.Update(b.ID, b.X, b.Y, b.halfBW, b.halfBH)
	}

	for _, fn := range w.mapListeners {
		fn(m)
	}
}

func (w *World) newID() uint64 {
	w.nextID++
	return w.nextID
}

// NextTick advances the whole world by one global tick: player background
// bookkeeping, projectile flight and collisions, loot box pickups, and
// respawn timers. Entities are visited in id order so a tick is
// reproducible for a given input history.
func (w *World) NextTick() {
	w.tick++

	for _, id := range sortedKeys(w.players) {
		if p, ok := w.players[id]; ok {
			p.backgroundTick(w)
		}
	}
	for _, id := range sortedKeys(w.projectiles) {
		if pr, ok := w.projectiles[id]; ok {
			pr.tick(w)
		}
	}
	for _, id := range sortedKeys(w.lootBoxes) {
		if b, ok := w.lootBoxes[id]; ok {
			w.checkLootBoxPickup(b)
		}
	}
	for _, id := range sortedKeys(w.respawns) {
		if r, ok := w.respawns[id]; ok {
			r.tick(w)
		}
	}
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// AddPlayer creates a player with the first free palette colour and places
// it at a random spawnpoint. Usernames are unique within a world.
func (w *World) AddPlayer(account *accounts.Data) (*Player, error) {
	if w.PlayerByUsername(account.Username) != nil {
		return nil, fmt.Errorf("player %s already in world", account.Username)
	}
	if len(w.players) >= len(PlayerColors) {
		return nil, fmt.Errorf("no free colours for %s", account.Username)
	}

	used := make(map[int]bool, len(w.players))
	for _, p := range w.players {
		used[p.Color] = true
	}
	color := 0
	for used[color] {
		color++
	}

	p := newPlayer(w.newID(), account, color)
	w.players[p.ID] = p
	w.ToRandomSpawnpoint(p)
	w.playerMoved(p)
	return p, nil
}

// playerMoved refreshes a player's broad-phase registration. Called after
// every position change.
func (w *World) playerMoved(p *Player) {
	w.playerChunks.Update(p.ID, p.X, p.Y, p.halfBW, p.halfBH)
}

func (w *World) projectileMoved(pr *Projectile) {
	w.projectileChunks.Update(pr.ID, pr.X, pr.Y, pr.halfBW, pr.halfBH)
}

// RemovePlayer drops a player from the world. Idempotent.
func (w *World) RemovePlayer(id uint64) {
	if _, ok := w.players[id]; !ok {
		return
	}
	w.playerChunks.Remove(id)
	delete(w.players, id)
}

// KickPlayer records the infraction on the player's account, notifies the
// room runtime, and removes the player.
func (w *World) KickPlayer(p *Player, reason string) {
	if _, ok := w.players[p.ID]; !ok {
		return
	}
	p.Account.RecordInfraction(reason)
	log.Printf("kicking %s: %s", p.Account.Username, reason)
	if w.onKick != nil {
		w.onKick(p, reason)
	}
	w.RemovePlayer(p.ID)
}

// Players returns the live players keyed by id.
func (w *World) Players() map[uint64]*Player { return w.players }

// PlayerByUsername finds a player by account username.
func (w *World) PlayerByUsername(username string) *Player {
	for _, p := range w.players {
		if p.Account.Username == username {
			return p
		}
	}
	return nil
}

// ToRandomSpawnpoint teleports a player to a uniformly random spawnpoint of
// the current map. Spawn points are tile coordinates; the player stands on
// the tile centre.
func (w *World) ToRandomSpawnpoint(p *Player) {
	m := w.current
	if m == nil || len(m.PlayerSpawns) == 0 {
		return
	}
	spawn := m.PlayerSpawns[w.rng.Intn(len(m.PlayerSpawns))]
	p.Teleport(spawn.X+0.5, spawn.Y+0.5)
	w.playerMoved(p)
}

// SpreadPlayers places every player on a distinct spawnpoint, drawing
// without replacement. Exhausting the spawn set is logged and the
// remaining players stay put.
func (w *World) SpreadPlayers() {
	m := w.current
	if m == nil {
		return
	}
	remaining := append([]Point(nil), m.PlayerSpawns...)
	for _, id := range sortedKeys(w.players) {
		p := w.players[id]
		if len(remaining) == 0 {
			log.Printf("spreadPlayers: out of spawnpoints on map %s (%d players)", m.ID, len(w.players))
			return
		}
		i := w.rng.Intn(len(remaining))
		spawn := remaining[i]
		remaining[i] = remaining[len(remaining)-1]
		remaining = remaining[:len(remaining)-1]
		p.Teleport(spawn.X+0.5, spawn.Y+0.5)
		w.playerMoved(p)
	}
}

// FireProjectile spawns a projectile of the player's weapon type at the
// given angle.
func (w *World) FireProjectile(p *Player, angle float64) *Projectile {
	pr := newProjectile(w.newID(), p.Weapon, p, angle)
	w.projectiles[pr.ID] = pr
	w.projectileMoved(pr)
	p.Account.Trackers.ShotsFired++
	return pr
}

// RemoveProjectile drops a projectile. Velocity is zeroed first so a final
// snapshot shows it halted rather than teleporting. Idempotent.
func (w *World) RemoveProjectile(id uint64) {
	pr, ok := w.projectiles[id]
	if !ok {
		return
	}
	pr.VX, pr.VY, pr.VA = 0, 0, 0
	w.projectileChunks.Remove(id)
	delete(w.projectiles, id)
}

// Projectiles returns the live projectiles keyed by id.
func (w *World) Projectiles() map[uint64]*Projectile { return w.projectiles }

// SpawnLootBoxes clears all boxes and pending respawn timers, then places
// one box per loot spawn descriptor of the current map.
func (w *World) SpawnLootBoxes() {
	for id := range w.lootBoxes {
		w.lootBoxChunks.Remove(id)
		delete(w.lootBoxes, id)
	}
	for id := range w.respawns {
		delete(w.respawns, id)
	}
	m := w.current
	if m == nil {
		return
	}
	for _, spawn := range m.LootSpawns {
		w.spawnLootBox(spawn.Point.X+0.5, spawn.Point.Y+0.5, spawn.Variant, true)
	}
}

func (w *World) spawnLootBox(x, y float64, variant tilemap.LootBoxVariant, respawning bool) *LootBox {
	b := newLootBox(w.newID(), x, y, variant, respawning)
	b.settle(w)
	w.lootBoxes[b.ID] = b
	w.lootBoxChunks.Update(b.ID, b.X, b.Y, b.halfBW, b.halfBH)
	return b
}

// LootBoxes returns the live loot boxes keyed by id.
func (w *World) LootBoxes() map[uint64]*LootBox { return w.lootBoxes }

// RespawnTimers returns the pending loot box respawn timers keyed by id.
// Timers are server-internal and never appear in snapshots.
func (w *World) RespawnTimers() map[uint64]*LootBoxRespawn { return w.respawns }

func (w *World) removeRespawnTimer(id uint64) { delete(w.respawns, id) }

// RemoveLootBox drops a loot box; map-spawned boxes leave a respawn timer
// behind at their resting position. Idempotent.
func (w *World) RemoveLootBox(id uint64) {
	b, ok := w.lootBoxes[id]
	if !ok {
		return
	}
	w.lootBoxChunks.Remove(id)
	delete(w.lootBoxes, id)
	if b.respawning {
		r := newLootBoxRespawn(w.newID(), b.X, b.Y, b.Variant)
		w.respawns[r.ID] = r
	}
}

// checkLootBoxPickup gives the box's contents to the first player touching
// it.
func (w *World) checkLootBoxPickup(b *LootBox) {
	for _, id := range w.lootBoxChunks.InSameChunks(b.ID, w.playerChunks) {
		p, ok := w.players[id]
		if !ok || !polygonsIntersect(b.verts, p.verts) {
			continue
		}
		w.grantLoot(p, b.Variant)
		p.Account.Trackers.LootBoxes++
		w.RemoveLootBox(b.ID)
		return
	}
}

// grantLoot applies a loot box's contents to a player. Weapon boxes swap
// the player onto the shard weapon; modifier boxes grant a random modifier;
// random boxes roll between the two.
func (w *World) grantLoot(p *Player, variant tilemap.LootBoxVariant) {
	if variant == tilemap.LootBoxRandom {
		if w.rng.Intn(2) == 0 {
			variant = tilemap.LootBoxWeapon
		} else {
			variant = tilemap.LootBoxModifier
		}
	}
	switch variant {
	case tilemap.LootBoxWeapon:
		p.Weapon = ProjectileShard
	case tilemap.LootBoxModifier:
		p.GrantModifier(Modifier(w.rng.Intn(int(modifierCount))))
	}
}

// String summarises the world for debug logging.
func (w *World) String() string {
	mapID := "<none>"
	if w.current != nil {
		mapID = w.current.ID
	}
	return fmt.Sprintf("world{tick=%d map=%s players=%d projectiles=%d lootBoxes=%d}",
		w.tick, mapID, len(w.players), len(w.projectiles), len(w.lootBoxes))
}
