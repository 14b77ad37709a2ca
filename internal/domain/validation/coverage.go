package validation

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/target/sarbatch/internal/domain/geo"
)

var (
	//go:embed data/dem_coverage.geojson
	demCoverageGeoJSON []byte
	//go:embed data/static_coverage.geojson
	staticCoverageGeoJSON []byte
)

// CoverageOptions tune HasSufficientCoverage.
type CoverageOptions struct {
	// Threshold is the minimum fraction of the query polygon that must be covered.
	Threshold float64
	// Buffer pads the query polygon, in degrees, before intersecting.
	Buffer float64
}

// DefaultCoverageOptions returns a 0.2 threshold with no buffer.
func DefaultCoverageOptions() CoverageOptions {
	return CoverageOptions{Threshold: 0.2}
}

// Loader returns GeoJSON FeatureCollection bytes.
type Loader func() ([]byte, error)

// BytesLoader serves b.
func BytesLoader(b []byte) Loader {
	return func() ([]byte, error) { return b, nil }
}

// FileLoader reads the GeoJSON file at path.
func FileLoader(path string) Loader {
	return func() ([]byte, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read coverage %s: %w", path, err)
		}
		return b, nil
	}
}

// Coverage is a multi-polygon reference extent. It is loaded on first use and immutable after.
type Coverage struct {
	load Loader

	once    sync.Once
	shape   geo.Shape
	shifted geo.Shape
	err     error
}

// NewCoverage returns a Coverage that loads its geometry with load.
func NewCoverage(load Loader) *Coverage {
	return &Coverage{load: load}
}

// DefaultDEMCoverage returns the embedded coarse DEM extent.
func DefaultDEMCoverage() *Coverage {
	return NewCoverage(BytesLoader(demCoverageGeoJSON))
}

// DefaultStaticCoverage returns the embedded OPERA static-layer extent.
func DefaultStaticCoverage() *Coverage {
	return NewCoverage(BytesLoader(staticCoverageGeoJSON))
}

// CoverageFromPath returns the coverage at path, or fallback when path is empty.
func CoverageFromPath(path string, fallback func() *Coverage) *Coverage {
	if path == "" {
		return fallback()
	}
	return NewCoverage(FileLoader(path))
}

// Load parses the geometry. It is safe to call repeatedly; only the first call does work.
func (c *Coverage) Load() error {
	c.once.Do(func() {
		mp, err := c.parse()
		if err == nil {
			c.shape, err = geo.FromMultiPolygon(mp)
		}
		if err == nil {
			c.shifted, err = geo.FromMultiPolygon(geo.Translate(mp, 360))
		}
		if err != nil {
			c.err = fmt.Errorf("load coverage: %w", err)
		}
	})
	return c.err
}

func (c *Coverage) parse() (orb.MultiPolygon, error) {
	raw, err := c.load()
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("parse coverage geojson: %w", err)
	}

	var mp orb.MultiPolygon
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = append(mp, g)
		case orb.MultiPolygon:
			mp = append(mp, g...)
		default:
			return nil, fmt.Errorf("unsupported coverage geometry %s", f.Geometry.GeoJSONType())
		}
	}
	if len(mp) == 0 {
		return nil, errors.New("coverage geojson has no polygons")
	}
	return mp, nil
}

// footprint converts poly to a shape, unwrapping it to 0..360 when it crosses the antimeridian.
func footprint(poly orb.Polygon, buffer float64) (geo.Shape, bool, error) {
	if len(poly) == 0 || len(poly[0]) == 0 {
		return geo.Shape{}, false, nil
	}
	wrapped := geo.CrossesAntimeridian(poly[0])
	if wrapped {
		poly = geo.Unwrap(poly)
	}
	s, err := geo.Buffer(poly, buffer)
	return s, wrapped, err
}

// Fraction returns the share of poly, padded by buffer degrees, that lies inside the coverage.
// Polygons crossing the antimeridian are unwrapped before intersecting.
func (c *Coverage) Fraction(poly orb.Polygon, buffer float64) (float64, error) {
	if err := c.Load(); err != nil {
		return 0, err
	}
	q, wrapped, err := footprint(poly, buffer)
	if err != nil {
		return 0, err
	}
	total := q.Area()
	if total == 0 {
		return 0, nil
	}

	covered, err := q.IntersectionArea(c.shape)
	if err != nil {
		return 0, err
	}
	if wrapped {
		extra, err := q.IntersectionArea(c.shifted)
		if err != nil {
			return 0, err
		}
		covered += extra
	}
	return min(covered/total, 1), nil
}

// HasSufficientCoverage reports whether at least opts.Threshold of poly is covered.
func (c *Coverage) HasSufficientCoverage(poly orb.Polygon, opts CoverageOptions) (bool, error) {
	f, err := c.Fraction(poly, opts.Buffer)
	if err != nil {
		return false, err
	}
	return f > 0 && f >= opts.Threshold, nil
}

// Intersects reports whether poly touches or overlaps the coverage.
func (c *Coverage) Intersects(poly orb.Polygon) (bool, error) {
	if err := c.Load(); err != nil {
		return false, err
	}
	q, wrapped, err := footprint(poly, 0)
	if err != nil {
		return false, err
	}
	return q.Intersects(c.shape) || (wrapped && q.Intersects(c.shifted)), nil
}
