// Package tilemap compiles authored tile data into the collision grids and
// spawn tables the simulation runs against.
//
// Input files use the Tiled JSON export format. Authoring coordinates have
// y pointing down; the simulation has y pointing up, so everything is
// flipped on load. All tile geometry is normalised to unit tiles.
package tilemap

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Point is a 2-D coordinate in simulation space (tiles, y up).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Collision is an axis-aligned collision rectangle with a surface friction
// coefficient. Tileset collisions are in tile-local coordinates (centred on
// the unit tile); map collisions are absolute. Immutable after load.
type Collision struct {
	X, Y     float64  // centre
	HalfW    float64  // half extents
	HalfH    float64
	Friction float64  // positive, typically 1.0-1.5
	Verts    [4]Point // corners, clockwise
}

// Translated returns a copy of the collision moved by (dx, dy).
func (c Collision) Translated(dx, dy float64) Collision {
	out := c
	out.X += dx
	out.Y += dy
	for i := range out.Verts {
		out.Verts[i].X += dx
		out.Verts[i].Y += dy
	}
	return out
}

// newCollision builds an axis-aligned collision from centre and half extents.
// Vertices are emitted clockwise starting at the top-left (y up).
func newCollision(x, y, halfW, halfH, friction float64) Collision {
	return Collision{
		X: x, Y: y,
		HalfW:    halfW,
		HalfH:    halfH,
		Friction: friction,
		Verts: [4]Point{
			{x - halfW, y + halfH},
			{x + halfW, y + halfH},
			{x + halfW, y - halfH},
			{x - halfW, y - halfH},
		},
	}
}

// LootBoxVariant enumerates the loot box kinds a tileset may spawn.
type LootBoxVariant string

const (
	LootBoxRandom   LootBoxVariant = "random"
	LootBoxWeapon   LootBoxVariant = "weapon"
	LootBoxModifier LootBoxVariant = "modifier"
)

// ParseLootBoxVariant validates a variant name from a tileset property.
func ParseLootBoxVariant(s string) (LootBoxVariant, bool) {
	switch v := LootBoxVariant(s); v {
	case LootBoxRandom, LootBoxWeapon, LootBoxModifier:
		return v, true
	}
	return "", false
}

// Tileset holds per-tile collision templates and spawn classifiers.
// Immutable after load.
type Tileset struct {
	TileCount     int
	collisions    map[int][]Collision       // tile id -> tile-local templates
	playerSpawns  map[int]struct{}          // tile ids tagged spawnpoint=player
	lootBoxSpawns map[int]LootBoxVariant    // tile ids tagged spawnpoint=lootbox=<variant>
}

// Collisions returns the tile-local collision templates for a tile id.
func (t *Tileset) Collisions(tileID int) []Collision { return t.collisions[tileID] }

// IsPlayerSpawn reports whether a tile id is tagged as a player spawnpoint.
func (t *Tileset) IsPlayerSpawn(tileID int) bool {
	_, ok := t.playerSpawns[tileID]
	return ok
}

// LootBoxSpawn returns the loot box variant bound to a tile id, if any.
func (t *Tileset) LootBoxSpawn(tileID int) (LootBoxVariant, bool) {
	v, ok := t.lootBoxSpawns[tileID]
	return v, ok
}

// Raw Tiled JSON shapes. Only the fields the loader consumes.

type tilesetFile struct {
	TileWidth  int        `json:"tilewidth"`
	TileHeight int        `json:"tileheight"`
	TileCount  int        `json:"tilecount"`
	Tiles      []tileJSON `json:"tiles"`
}

type tileJSON struct {
	ID          int            `json:"id"`
	ObjectGroup *objectGroup   `json:"objectgroup"`
	Properties  []propertyJSON `json:"properties"`
}

type objectGroup struct {
	Objects []objectJSON `json:"objects"`
}

type objectJSON struct {
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	Properties []propertyJSON `json:"properties"`
}

type propertyJSON struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

func findProperty(props []propertyJSON, name string) (any, bool) {
	for _, p := range props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// ParseTileset compiles a Tiled tileset JSON document. Content errors
// (non-square tiles, collisions without friction, unknown spawnpoint tags)
// are fatal.
func ParseTileset(data []byte) (*Tileset, error) {
	var raw tilesetFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tileset: %w", err)
	}
	if raw.TileWidth != raw.TileHeight {
		return nil, fmt.Errorf("tileset tiles must be square, got %dx%d", raw.TileWidth, raw.TileHeight)
	}
	if raw.TileWidth <= 0 {
		return nil, fmt.Errorf("tileset tile size must be positive, got %d", raw.TileWidth)
	}
	size := float64(raw.TileWidth)

	ts := &Tileset{
		TileCount:     raw.TileCount,
		collisions:    make(map[int][]Collision),
		playerSpawns:  make(map[int]struct{}),
		lootBoxSpawns: make(map[int]LootBoxVariant),
	}

	for _, tile := range raw.Tiles {
		if tile.ObjectGroup != nil {
			for _, obj := range tile.ObjectGroup.Objects {
				fv, ok := findProperty(obj.Properties, "friction")
				if !ok {
					return nil, fmt.Errorf("tile %d: collision at (%.1f, %.1f) has no friction property", tile.ID, obj.X, obj.Y)
				}
				friction, ok := fv.(float64)
				if !ok {
					return nil, fmt.Errorf("tile %d: friction property is not a number", tile.ID)
				}

				// Authoring coordinates are pixels with y down; remap the
				// rectangle centre to a unit tile centred on the origin with
				// y up.
				cx := (obj.X+obj.Width/2)/size - 0.5
				cy := 0.5 - (obj.Y+obj.Height/2)/size
				ts.collisions[tile.ID] = append(ts.collisions[tile.ID],
					newCollision(cx, cy, obj.Width/size/2, obj.Height/size/2, friction))
			}
		}

		if sv, ok := findProperty(tile.Properties, "spawnpoint"); ok {
			tag, _ := sv.(string)
			switch {
			case tag == "player":
				ts.playerSpawns[tile.ID] = struct{}{}
			case strings.HasPrefix(tag, "lootbox="):
				variant, ok := ParseLootBoxVariant(strings.TrimPrefix(tag, "lootbox="))
				if !ok {
					return nil, fmt.Errorf("tile %d: unknown loot box variant %q", tile.ID, tag)
				}
				ts.lootBoxSpawns[tile.ID] = variant
			default:
				return nil, fmt.Errorf("tile %d: unknown spawnpoint tag %q", tile.ID, tag)
			}
		}
	}

	return ts, nil
}

// LoadTileset reads and compiles a tileset file.
func LoadTileset(path string) (*Tileset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tileset: %w", err)
	}
	return ParseTileset(data)
}
