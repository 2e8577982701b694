package tilemap

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
)

// DefaultPool is the pool a map belongs to when its properties name none.
const DefaultPool = "default-pool"

// PoolAll contains every registered map.
const PoolAll = "all"

// LootSpawn describes a loot box spawn location on a map.
type LootSpawn struct {
	Point   Point
	Variant LootBoxVariant
}

// Map is a tileset instantiated against a tile grid: an absolute-coordinate
// collision grid plus spawn tables. Grid y is flipped so row 0 is the bottom
// row. Immutable after construction.
type Map struct {
	ID     string
	Name   string
	Pool   string
	Width  int // tiles
	Height int

	// grid[y][x] holds the collisions overlapping that cell.
	grid [][][]Collision

	PlayerSpawns []Point
	LootSpawns   []LootSpawn
}

// CellCollisions returns the collisions registered in cell (x, y).
// Out-of-range cells are empty.
func (m *Map) CellCollisions(x, y int) []Collision {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return nil
	}
	return m.grid[y][x]
}

type mapFile struct {
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Layers     []layerJSON    `json:"layers"`
	Properties []propertyJSON `json:"properties"`
}

type layerJSON struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []int  `json:"data"`
}

// BuildMap instantiates a parsed map description against a tileset.
//
// The layer named "spawns" (case-insensitive) carries spawn tags only; all
// other layers contribute collisions. Layers whose names start with "A" are
// rendered above entities on the client; the server treats them as ordinary
// collision layers. Tile id 0 is empty, otherwise ids are stored offset by
// one. maxPlayers is used only for the spawn-count check.
func BuildMap(id string, data []byte, ts *Tileset, maxPlayers int) (*Map, error) {
	var raw mapFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse map %s: %w", id, err)
	}
	if raw.Width <= 0 || raw.Height <= 0 {
		return nil, fmt.Errorf("map %s: invalid size %dx%d", id, raw.Width, raw.Height)
	}

	m := &Map{
		ID:     id,
		Name:   id,
		Pool:   DefaultPool,
		Width:  raw.Width,
		Height: raw.Height,
		grid:   make([][][]Collision, raw.Height),
	}
	for y := range m.grid {
		m.grid[y] = make([][]Collision, raw.Width)
	}

	if v, ok := findProperty(raw.Properties, "pool"); ok {
		if s, ok := v.(string); ok && s != "" {
			m.Pool = s
		}
	}
	if v, ok := findProperty(raw.Properties, "name"); ok {
		if s, ok := v.(string); ok && s != "" {
			m.Name = s
		}
	}

	for _, layer := range raw.Layers {
		if len(layer.Data) != raw.Width*raw.Height {
			return nil, fmt.Errorf("map %s: layer %q has %d tiles, want %d",
				id, layer.Name, len(layer.Data), raw.Width*raw.Height)
		}
		if strings.EqualFold(layer.Name, "spawns") {
			m.loadSpawnLayer(layer, ts)
			continue
		}
		if err := m.loadCollisionLayer(layer, ts); err != nil {
			return nil, err
		}
	}

	// Not fatal: the map still loads, but rooms at capacity cannot spread
	// players onto distinct spawnpoints.
	if len(m.PlayerSpawns) < maxPlayers {
		log.Printf("map %s: only %d player spawns for %d max players", id, len(m.PlayerSpawns), maxPlayers)
	}
	return m, nil
}

func (m *Map) loadCollisionLayer(layer layerJSON, ts *Tileset) error {
	for i, raw := range layer.Data {
		if raw == 0 {
			continue
		}
		tileID := raw - 1
		col := i % m.Width
		row := i / m.Width
		// Authoring rows count down from the top; the grid counts up.
		gy := m.Height - 1 - row
		dx := float64(col) + 0.5
		dy := float64(gy) + 0.5
		for _, tmpl := range ts.Collisions(tileID) {
			m.grid[gy][col] = append(m.grid[gy][col], tmpl.Translated(dx, dy))
		}
	}
	return nil
}

func (m *Map) loadSpawnLayer(layer layerJSON, ts *Tileset) {
	for i, raw := range layer.Data {
		if raw == 0 {
			continue
		}
		tileID := raw - 1
		col := i % m.Width
		gy := m.Height - 1 - i/m.Width
		pt := Point{X: float64(col), Y: float64(gy)}
		if ts.IsPlayerSpawn(tileID) {
			m.PlayerSpawns = append(m.PlayerSpawns, pt)
		} else if variant, ok := ts.LootBoxSpawn(tileID); ok {
			m.LootSpawns = append(m.LootSpawns, LootSpawn{Point: pt, Variant: variant})
		}
	}
}

// LoadMap reads and builds a map file against a pre-loaded tileset.
func LoadMap(id, path string, ts *Tileset, maxPlayers int) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map: %w", err)
	}
	return BuildMap(id, data, ts, maxPlayers)
}
