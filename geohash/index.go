package geohash

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
)

const (
	earthRadiusKm = 6371.0

	// kmPerDegree is the length of one degree of latitude.
	kmPerDegree = 111.32

	// DefaultSearchRadiusKm is where a widening search starts.
	DefaultSearchRadiusKm = 1.0

	// DefaultSearchRetries bounds how many times a widening search doubles its radius.
	DefaultSearchRetries = 5
)

// Point is a position in degrees.
type Point struct {
	Lat, Lng float64
}

// Hit is an indexed key with its distance from the search centre.
type Hit struct {
	Key        string
	Point      Point
	DistanceKm float64
}

// spatialPoint wraps a keyed point to satisfy the rtreego.Spatial interface
type spatialPoint struct {
	key   string
	point Point
}

// Bounds returns a tiny rectangle around the point
func (p *spatialPoint) Bounds() rtreego.Rect {
	return rtreego.Point{p.point.Lat, p.point.Lng}.ToRect(0.00001)
}

// Index keeps one point per key in an R-tree. It is not safe for concurrent
// use; the owner serializes access.
type Index struct {
	tree   *rtreego.Rtree
	points map[string]*spatialPoint
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		tree:   rtreego.NewTree(2, 25, 50),
		points: make(map[string]*spatialPoint),
	}
}

// Upsert moves key to p, inserting it if absent.
func (idx *Index) Upsert(key string, p Point) {
	if old, ok := idx.points[key]; ok {
		idx.tree.Delete(old)
	}
	sp := &spatialPoint{key: key, point: p}
	idx.points[key] = sp
	idx.tree.Insert(sp)
}

// Remove drops key from the index. It reports whether the key was present.
func (idx *Index) Remove(key string) bool {
	old, ok := idx.points[key]
	if !ok {
		return false
	}
	idx.tree.Delete(old)
	delete(idx.points, key)
	return true
}

// Len returns the number of indexed keys.
func (idx *Index) Len() int {
	return len(idx.points)
}

// Nearby returns keys within radiusKm of center, closest first.
func (idx *Index) Nearby(center Point, radiusKm float64) []Hit {
	if radiusKm <= 0 || len(idx.points) == 0 {
		return nil
	}

	// Degrees of longitude shrink towards the poles, so widen the box accordingly.
	latDeg := radiusKm / kmPerDegree
	lngDeg := 180.0
	if c := math.Cos(center.Lat * math.Pi / 180); c > 0.01 {
		lngDeg = latDeg / c
	}

	// A box crossing the antimeridian is searched again shifted by a full turn.
	shifts := []float64{0}
	if center.Lng+lngDeg > 180 {
		shifts = append(shifts, -360)
	}
	if center.Lng-lngDeg < -180 {
		shifts = append(shifts, 360)
	}

	var hits []Hit
	seen := make(map[string]struct{})
	for _, shift := range shifts {
		corner := rtreego.Point{center.Lat - latDeg, center.Lng + shift - lngDeg}
		rect, err := rtreego.NewRect(corner, []float64{2 * latDeg, 2 * lngDeg})
		if err != nil {
			continue
		}
		for _, s := range idx.tree.SearchIntersect(rect) {
			sp := s.(*spatialPoint)
			if _, dup := seen[sp.key]; dup {
				continue
			}
			seen[sp.key] = struct{}{}
			d := Haversine(center, sp.point)
			if d <= radiusKm {
				hits = append(hits, Hit{Key: sp.key, Point: sp.point, DistanceKm: d})
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceKm == hits[j].DistanceKm {
			return hits[i].Key < hits[j].Key
		}
		return hits[i].DistanceKm < hits[j].DistanceKm
	})
	return hits
}

// NearbyWithRetries searches around center starting at radiusKm and doubles
// the radius until something is found or maxRetries searches were made.
func (idx *Index) NearbyWithRetries(center Point, radiusKm float64, maxRetries int) []Hit {
	if radiusKm <= 0 {
		radiusKm = DefaultSearchRadiusKm
	}
	for i := 0; i < maxRetries; i++ {
		if hits := idx.Nearby(center, radiusKm); len(hits) > 0 {
			return hits
		}
		radiusKm *= 2
	}
	return nil
}

// Haversine returns the great-circle distance between a and b in km.
func Haversine(a, b Point) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
