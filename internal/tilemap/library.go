package tilemap

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Library indexes loaded maps by id and by pool. Every map belongs to its
// own pool and to the "all" pool. The library is immutable once loading is
// done; rooms share one library and keep their own current-map slot.
type Library struct {
	maps  map[string]*Map
	pools map[string][]*Map
}

// NewLibrary returns an empty map library.
func NewLibrary() *Library {
	return &Library{
		maps:  make(map[string]*Map),
		pools: make(map[string][]*Map),
	}
}

// Register adds a map under its id, its pool, and the "all" pool.
func (l *Library) Register(m *Map) error {
	if _, exists := l.maps[m.ID]; exists {
		return fmt.Errorf("map %s already registered", m.ID)
	}
	l.maps[m.ID] = m
	l.pools[m.Pool] = append(l.pools[m.Pool], m)
	if m.Pool != PoolAll {
		l.pools[PoolAll] = append(l.pools[PoolAll], m)
	}
	return nil
}

// Get returns a registered map by id.
func (l *Library) Get(id string) (*Map, bool) {
	m, ok := l.maps[id]
	return m, ok
}

// Len returns the number of registered maps.
func (l *Library) Len() int { return len(l.maps) }

// RandomInPool picks a uniformly random map from a pool.
func (l *Library) RandomInPool(rng *rand.Rand, pool string) (*Map, bool) {
	maps := l.pools[pool]
	if len(maps) == 0 {
		return nil, false
	}
	return maps[rng.Intn(len(maps))], true
}

// RandomPool picks a uniformly random named pool (never "all").
func (l *Library) RandomPool(rng *rand.Rand) (string, bool) {
	names := make([]string, 0, len(l.pools))
	for name := range l.pools {
		if name != PoolAll {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names) // deterministic order under a seeded rng
	return names[rng.Intn(len(names))], true
}

// LoadDir loads "tileset.json" plus every other *.json file in dir as a map.
// Maps that fail to load are logged and skipped; an unreadable tileset is
// fatal since nothing can load without it.
func LoadDir(dir string, maxPlayers int) (*Library, error) {
	ts, err := LoadTileset(filepath.Join(dir, "tileset.json"))
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read maps dir: %w", err)
	}

	lib := NewLibrary()
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == "tileset.json" || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		m, err := LoadMap(id, filepath.Join(dir, name), ts, maxPlayers)
		if err != nil {
			log.Printf("map %s not registered: %v", id, err)
			continue
		}
		if err := lib.Register(m); err != nil {
			log.Printf("map %s not registered: %v", id, err)
		}
	}
	return lib, nil
}
