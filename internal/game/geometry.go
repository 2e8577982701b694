// Package game is the per-room simulation: an entity kernel moving oriented
// boxes against a tile collision grid, the player movement and lockstep
// validation model, projectiles, and loot boxes. Everything in this package
// is single-threaded; a room's worker goroutine is the only caller.
package game

import (
	"github.com/spsquared/battleboxes-server/internal/tilemap"
)

// Point is re-exported from tilemap so entity code reads naturally.
type Point = tilemap.Point

// insideEdge reports whether p lies on the inside half-plane of the directed
// edge q->r of a clockwise polygon. Points exactly on the edge count as
// inside; sub-stepping keeps penetration shallow enough that boundary
// contacts must be treated as hits.
func insideEdge(p, q, r Point) bool {
	return q.X*(p.Y-r.Y)+p.X*(r.Y-q.Y)+r.X*(q.Y-p.Y) >= 0
}

// pointInPolygon tests p against a clockwise convex quad.
func pointInPolygon(p Point, poly [4]Point) bool {
	for i := range poly {
		if !insideEdge(p, poly[i], poly[(i+1)%4]) {
			return false
		}
	}
	return true
}

// polygonsIntersect tests two clockwise convex quads by checking whether any
// vertex of one lies inside the other. This misses pure edge-crossing
// overlaps, but those cannot arise without a vertex penetration first given
// sub-stepped translation, so a full SAT is not worth its cost here.
func polygonsIntersect(a, b [4]Point) bool {
	for _, v := range a {
		if pointInPolygon(v, b) {
			return true
		}
	}
	for _, v := range b {
		if pointInPolygon(v, a) {
			return true
		}
	}
	return false
}
