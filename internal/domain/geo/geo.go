// Package geo holds the planar polygon operations used by the coverage and bounds validators.
// Coordinates are [lon, lat] degrees treated as a flat plane. Footprints arrive as orb types;
// overlay operations run on simplefeatures geometries.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/peterstace/simplefeatures/geom"
)

// bufferSegments is the number of vertices used to approximate a full circle when buffering.
const bufferSegments = 16

// ErrInvalidGeometry marks a polygon that is not simple or has too few vertices.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Shape is a validated areal geometry. The zero value is empty.
type Shape struct {
	g geom.Geometry
}

// FromPolygon validates p. Unclosed rings are closed.
func FromPolygon(p orb.Polygon) (Shape, error) {
	if len(p) == 0 {
		return Shape{}, nil
	}
	closed := make(orb.Polygon, len(p))
	for i, r := range p {
		closed[i] = closeRing(r)
		if len(closed[i]) < 4 {
			return Shape{}, fmt.Errorf("%w: ring %d has %d points", ErrInvalidGeometry, i, len(r))
		}
	}
	g, err := geom.UnmarshalWKT(wkt.MarshalString(closed))
	if err == nil {
		err = g.Validate()
	}
	if err != nil {
		return Shape{}, fmt.Errorf("%w: %w", ErrInvalidGeometry, err)
	}
	return Shape{g: g}, nil
}

// FromMultiPolygon dissolves mp into one shape. Members may overlap.
func FromMultiPolygon(mp orb.MultiPolygon) (Shape, error) {
	var out Shape
	for i, p := range mp {
		s, err := FromPolygon(p)
		if err != nil {
			return Shape{}, fmt.Errorf("polygon %d: %w", i, err)
		}
		if out, err = out.Union(s); err != nil {
			return Shape{}, err
		}
	}
	return out, nil
}

// IsEmpty reports whether s covers no area.
func (s Shape) IsEmpty() bool {
	return s.g.IsEmpty()
}

// Area returns the area of s in square degrees.
func (s Shape) Area() float64 {
	return s.g.Area()
}

// Intersects reports whether s and o share any point, including touching boundaries.
func (s Shape) Intersects(o Shape) bool {
	if s.IsEmpty() || o.IsEmpty() {
		return false
	}
	return geom.Intersects(s.g, o.g)
}

// IntersectionArea returns the area s and o have in common.
func (s Shape) IntersectionArea(o Shape) (float64, error) {
	if !s.Intersects(o) {
		return 0, nil
	}
	g, err := geom.Intersection(s.g, o.g)
	if err != nil {
		return 0, fmt.Errorf("intersect: %w", err)
	}
	return g.Area(), nil
}

// Union returns the dissolved union of s and o.
func (s Shape) Union(o Shape) (Shape, error) {
	switch {
	case s.IsEmpty():
		return o, nil
	case o.IsEmpty():
		return s, nil
	}
	g, err := geom.Union(s.g, o.g)
	if err != nil {
		return Shape{}, fmt.Errorf("union: %w", err)
	}
	return Shape{g: g}, nil
}

// Buffer pads p by d degrees: the result is p plus every point within d of its boundary.
// Round joins are approximated with bufferSegments vertices per full turn. A non-positive d
// returns p unchanged.
func Buffer(p orb.Polygon, d float64) (Shape, error) {
	out, err := FromPolygon(p)
	if err != nil || d <= 0 {
		return out, err
	}
	for _, r := range p {
		r = closeRing(r)
		for i := 0; i+1 < len(r); i++ {
			if r[i] == r[i+1] {
				continue
			}
			capsule, err := FromPolygon(orb.Polygon{stadium(r[i], r[i+1], d)})
			if err != nil {
				return Shape{}, err
			}
			if out, err = out.Union(capsule); err != nil {
				return Shape{}, err
			}
		}
	}
	return out, nil
}

// stadium returns the counter-clockwise ring of all points within d of segment a-b.
func stadium(a, b orb.Point, d float64) orb.Ring {
	half := bufferSegments / 2
	theta := math.Atan2(b[1]-a[1], b[0]-a[0])
	ring := make(orb.Ring, 0, 2*half+3)
	arc := func(c orb.Point, from float64) {
		for k := 0; k <= half; k++ {
			ang := from + math.Pi*float64(k)/float64(half)
			ring = append(ring, orb.Point{c[0] + d*math.Cos(ang), c[1] + d*math.Sin(ang)})
		}
	}
	arc(b, theta-math.Pi/2)
	arc(a, theta+math.Pi/2)
	return append(ring, ring[0])
}

// CrossesAntimeridian reports whether the ring spans more than half the globe in longitude,
// which for a scene footprint means its vertices straddle ±180°.
func CrossesAntimeridian(r orb.Ring) bool {
	if len(r) == 0 {
		return false
	}
	b := r.Bound()
	return b.Max[0]-b.Min[0] > 180
}

// Unwrap returns a copy of p with negative longitudes shifted by +360 so a footprint that
// crosses the antimeridian becomes contiguous in the 0..360 range.
func Unwrap(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		nr := make(orb.Ring, len(r))
		for k, pt := range r {
			if pt[0] < 0 {
				pt[0] += 360
			}
			nr[k] = pt
		}
		out[i] = nr
	}
	return out
}

// Translate returns a copy of mp shifted by dx degrees of longitude.
func Translate(mp orb.MultiPolygon, dx float64) orb.MultiPolygon {
	out := make(orb.MultiPolygon, len(mp))
	for i, poly := range mp {
		np := make(orb.Polygon, len(poly))
		for j, ring := range poly {
			nr := make(orb.Ring, len(ring))
			for k, p := range ring {
				nr[k] = orb.Point{p[0] + dx, p[1]}
			}
			np[j] = nr
		}
		out[i] = np
	}
	return out
}

// Box returns the closed counter-clockwise ring of a lon/lat bounding box.
func Box(minLon, minLat, maxLon, maxLat float64) orb.Ring {
	return orb.Ring{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}
}

func closeRing(r orb.Ring) orb.Ring {
	if len(r) == 0 || r[0] == r[len(r)-1] {
		return r
	}
	return append(r[:len(r):len(r)], r[0])
}
