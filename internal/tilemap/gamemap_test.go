package tilemap

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// 3x2 map using the test tileset: bottom row solid, a player spawn over the
// left column and a loot box spawn over the right column.
//
// Authoring data is row-major from the top, so the first Width entries are
// the TOP row.
const testMapJSON = `{
	"width": 3,
	"height": 2,
	"properties": [
		{"name": "name", "value": "Test Arena"},
		{"name": "pool", "value": "arenas"}
	],
	"layers": [
		{"name": "ground", "width": 3, "height": 2,
		 "data": [0, 0, 0,
		          1, 1, 1]},
		{"name": "spawns", "width": 3, "height": 2,
		 "data": [3, 0, 4,
		          0, 0, 0]}
	]
}`

func mustMap(t *testing.T) *Map {
	t.Helper()
	m, err := BuildMap("test", []byte(testMapJSON), mustTileset(t), 1)
	if err != nil {
		t.Fatalf("BuildMap: %v", err)
	}
	return m
}

func TestBuildMap(t *testing.T) {
	m := mustMap(t)

	if m.Name != "Test Arena" || m.Pool != "arenas" {
		t.Errorf("properties not applied: name=%q pool=%q", m.Name, m.Pool)
	}
	if m.Width != 3 || m.Height != 2 {
		t.Fatalf("size: got %dx%d", m.Width, m.Height)
	}

	// The authored bottom row lands in grid row 0.
	for x := 0; x < 3; x++ {
		cols := m.CellCollisions(x, 0)
		if len(cols) != 1 {
			t.Fatalf("cell (%d, 0): want 1 collision, got %d", x, len(cols))
		}
		wantX := float64(x) + 0.5
		if cols[0].X != wantX || cols[0].Y != 0.5 {
			t.Errorf("cell (%d, 0): collision centred at (%v, %v), want (%v, 0.5)", x, cols[0].X, cols[0].Y, wantX)
		}
		if len(m.CellCollisions(x, 1)) != 0 {
			t.Errorf("cell (%d, 1): should be empty", x)
		}
	}

	if len(m.PlayerSpawns) != 1 {
		t.Fatalf("want 1 player spawn, got %d", len(m.PlayerSpawns))
	}
	if m.PlayerSpawns[0] != (Point{X: 0, Y: 1}) {
		t.Errorf("player spawn at %v, want (0, 1)", m.PlayerSpawns[0])
	}
	if len(m.LootSpawns) != 1 {
		t.Fatalf("want 1 loot spawn, got %d", len(m.LootSpawns))
	}
	if m.LootSpawns[0].Point != (Point{X: 2, Y: 1}) || m.LootSpawns[0].Variant != LootBoxModifier {
		t.Errorf("loot spawn %+v, want modifier at (2, 1)", m.LootSpawns[0])
	}
}

func TestBuildMapOutOfRangeCells(t *testing.T) {
	m := mustMap(t)
	for _, c := range [][2]int{{-1, 0}, {0, -1}, {3, 0}, {0, 2}} {
		if got := m.CellCollisions(c[0], c[1]); got != nil {
			t.Errorf("cell %v: want nil out of range, got %v", c, got)
		}
	}
}

func TestBuildMapLayerSizeMismatch(t *testing.T) {
	bad := `{"width": 3, "height": 2, "layers": [
		{"name": "ground", "width": 3, "height": 2, "data": [1, 1]}
	]}`
	if _, err := BuildMap("bad", []byte(bad), mustTileset(t), 1); err == nil {
		t.Fatal("expected an error for a short layer")
	}
}

func TestLibraryPools(t *testing.T) {
	lib := NewLibrary()
	ts := mustTileset(t)
	for i, pool := range []string{"arenas", "arenas", "towers"} {
		data := fmt.Sprintf(`{"width": 1, "height": 1,
			"properties": [{"name": "pool", "value": %q}],
			"layers": [{"name": "ground", "width": 1, "height": 1, "data": [1]}]}`, pool)
		m, err := BuildMap(fmt.Sprintf("m%d", i), []byte(data), ts, 0)
		if err != nil {
			t.Fatalf("BuildMap: %v", err)
		}
		if err := lib.Register(m); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	if lib.Len() != 3 {
		t.Fatalf("want 3 maps, got %d", lib.Len())
	}
	if _, ok := lib.Get("m1"); !ok {
		t.Error("m1 should be registered")
	}

	rng := rand.New(rand.NewSource(1))
	if _, ok := lib.RandomInPool(rng, "nonesuch"); ok {
		t.Error("empty pool should report no map")
	}
	for i := 0; i < 20; i++ {
		m, ok := lib.RandomInPool(rng, "arenas")
		if !ok || m.Pool != "arenas" {
			t.Fatalf("RandomInPool returned %v, %v", m, ok)
		}
		if _, ok := lib.RandomInPool(rng, PoolAll); !ok {
			t.Fatal("the all pool should never be empty here")
		}
		name, ok := lib.RandomPool(rng)
		if !ok || name == PoolAll {
			t.Fatalf("RandomPool returned %q, %v", name, ok)
		}
	}
}

func TestLibraryRegisterDuplicate(t *testing.T) {
	lib := NewLibrary()
	m := mustMap(t)
	if err := lib.Register(m); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := lib.Register(m); err == nil {
		t.Fatal("duplicate Register should fail")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"tileset.json": testTilesetJSON,
		"arena.json":   testMapJSON,
		"broken.json":  `{"width": 1, "height": 1, "layers": [{"name": "g", "width": 1, "height": 1, "data": []}]}`,
		"notes.txt":    "ignore me",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	lib, err := LoadDir(dir, 1)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if lib.Len() != 1 {
		t.Fatalf("want 1 map (broken one skipped), got %d", lib.Len())
	}
	if _, ok := lib.Get("arena"); !ok {
		t.Error("arena should be registered")
	}
}

func TestLoadDirMissingTileset(t *testing.T) {
	if _, err := LoadDir(t.TempDir(), 1); err == nil {
		t.Fatal("missing tileset should be fatal")
	}
}
