package tilemap

import (
	"math"
	"strings"
	"testing"
)

// minimal Tiled tileset with one solid tile, one half-slab tile, a player
// spawn tile and a loot box spawn tile
const testTilesetJSON = `{
	"tilewidth": 16,
	"tileheight": 16,
	"tilecount": 4,
	"tiles": [
		{
			"id": 0,
			"objectgroup": {"objects": [
				{"x": 0, "y": 0, "width": 16, "height": 16,
				 "properties": [{"name": "friction", "value": 1.0}]}
			]}
		},
		{
			"id": 1,
			"objectgroup": {"objects": [
				{"x": 0, "y": 8, "width": 16, "height": 8,
				 "properties": [{"name": "friction", "value": 1.5}]}
			]}
		},
		{
			"id": 2,
			"properties": [{"name": "spawnpoint", "value": "player"}]
		},
		{
			"id": 3,
			"properties": [{"name": "spawnpoint", "value": "lootbox=modifier"}]
		}
	]
}`

func mustTileset(t *testing.T) *Tileset {
	t.Helper()
	ts, err := ParseTileset([]byte(testTilesetJSON))
	if err != nil {
		t.Fatalf("ParseTileset: %v", err)
	}
	return ts
}

func TestParseTileset(t *testing.T) {
	ts := mustTileset(t)

	solid := ts.Collisions(0)
	if len(solid) != 1 {
		t.Fatalf("tile 0: want 1 collision, got %d", len(solid))
	}
	if solid[0].X != 0 || solid[0].Y != 0 {
		t.Errorf("tile 0: full-tile collision should be centred, got (%v, %v)", solid[0].X, solid[0].Y)
	}
	if solid[0].HalfW != 0.5 || solid[0].HalfH != 0.5 {
		t.Errorf("tile 0: want half extents 0.5, got (%v, %v)", solid[0].HalfW, solid[0].HalfH)
	}
	if solid[0].Friction != 1.0 {
		t.Errorf("tile 0: want friction 1.0, got %v", solid[0].Friction)
	}

	// Bottom half-slab: authored at y=8..16 (y down), so simulation centre
	// sits below the tile centre.
	slab := ts.Collisions(1)
	if len(slab) != 1 {
		t.Fatalf("tile 1: want 1 collision, got %d", len(slab))
	}
	if math.Abs(slab[0].Y-(-0.25)) > 1e-9 {
		t.Errorf("tile 1: slab centre should be y=-0.25 after flip, got %v", slab[0].Y)
	}
	if slab[0].HalfH != 0.25 {
		t.Errorf("tile 1: want half height 0.25, got %v", slab[0].HalfH)
	}

	if !ts.IsPlayerSpawn(2) {
		t.Error("tile 2 should be a player spawn")
	}
	if ts.IsPlayerSpawn(0) {
		t.Error("tile 0 should not be a player spawn")
	}
	if v, ok := ts.LootBoxSpawn(3); !ok || v != LootBoxModifier {
		t.Errorf("tile 3: want modifier loot box spawn, got (%v, %v)", v, ok)
	}
}

func TestParseTilesetVertexOrder(t *testing.T) {
	ts := mustTileset(t)
	v := ts.Collisions(0)[0].Verts

	want := [4]Point{{-0.5, 0.5}, {0.5, 0.5}, {0.5, -0.5}, {-0.5, -0.5}}
	if v != want {
		t.Errorf("vertices not clockwise from top-left: got %v", v)
	}
}

func TestParseTilesetErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{
			"non-square tiles",
			`{"tilewidth": 16, "tileheight": 8, "tilecount": 0, "tiles": []}`,
			"square",
		},
		{
			"collision without friction",
			`{"tilewidth": 16, "tileheight": 16, "tilecount": 1, "tiles": [
				{"id": 0, "objectgroup": {"objects": [{"x":0,"y":0,"width":16,"height":16}]}}
			]}`,
			"friction",
		},
		{
			"unknown spawnpoint tag",
			`{"tilewidth": 16, "tileheight": 16, "tilecount": 1, "tiles": [
				{"id": 0, "properties": [{"name": "spawnpoint", "value": "dragon"}]}
			]}`,
			"spawnpoint",
		},
		{
			"unknown loot box variant",
			`{"tilewidth": 16, "tileheight": 16, "tilecount": 1, "tiles": [
				{"id": 0, "properties": [{"name": "spawnpoint", "value": "lootbox=gold"}]}
			]}`,
			"variant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTileset([]byte(tt.json))
			if err == nil {
				t.Fatal("expected a load error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseLootBoxVariant(t *testing.T) {
	if _, ok := ParseLootBoxVariant("weapon"); !ok {
		t.Error("weapon should be a valid variant")
	}
	if _, ok := ParseLootBoxVariant("nope"); ok {
		t.Error("nope should not be a valid variant")
	}
}
