package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/target/sarbatch/internal/domain/geo"
	"github.com/target/sarbatch/internal/domain/model"
	"github.com/target/sarbatch/internal/domain/scene"
)

func demCoverage(cov *Coverage, opts CoverageOptions) Validator {
	return ValidatorFunc(func(_ context.Context, job Job) error {
		if err := cov.Load(); err != nil {
			return fmt.Errorf("dem coverage: %w", err)
		}
		var bad []string
		for _, g := range job.Granules {
			ok, err := cov.HasSufficientCoverage(g.Polygon, opts)
			if err != nil {
				return fmt.Errorf("dem coverage: %w", invalidFootprint(g.Name, err))
			}
			if !ok {
				bad = append(bad, g.Name)
			}
		}
		if len(bad) > 0 {
			return model.NewValidationErrorf(
				"Some requested scenes do not have DEM coverage: %s", strings.Join(bad, ", "),
			)
		}
		return nil
	})
}

func validPolarizations(_ context.Context, job Job) error {
	seen := make(map[string]struct{})
	for _, name := range CatalogNames(SceneNames(job.Parameters)) {
		pol, ok := scene.Polarization(name)
		if !ok {
			return model.NewValidationErrorf("Unable to determine the polarization of %s", name)
		}
		seen[pol] = struct{}{}
	}
	pols := sortedKeys(seen)
	if len(pols) > 1 {
		return model.NewValidationErrorf(
			"The requested scenes need to have the same polarization, got: %s", strings.Join(pols, ", "),
		)
	}
	if len(pols) == 1 && pols[0] != scene.PolarizationVV && pols[0] != scene.PolarizationHH {
		return model.NewValidationErrorf(
			"Only %s and %s polarizations are currently supported, got: %s",
			scene.PolarizationVV, scene.PolarizationHH, pols[0],
		)
	}
	return nil
}

// pairGroups splits a job's scenes into reference and secondary groups. Jobs with a plain
// granules list treat the first scene as the reference.
func pairGroups(params map[string]any) (reference, secondary []string) {
	if ref := stringList(params, "reference"); len(ref) > 0 {
		return ref, stringList(params, "secondary")
	}
	granules := stringList(params, "granules")
	if len(granules) == 0 {
		return nil, nil
	}
	return granules[:1], granules[1:]
}

func parseBursts(names []string) ([]scene.Burst, error) {
	out := make([]scene.Burst, 0, len(names))
	for _, n := range names {
		b, ok := scene.ParseBurst(n)
		if !ok {
			return nil, model.NewValidationErrorf("%s is not a Sentinel-1 burst granule", n)
		}
		out = append(out, b)
	}
	return out, nil
}

func burstIDs(bursts []scene.Burst) []string {
	ids := make([]string, len(bursts))
	for i, b := range bursts {
		ids[i] = b.ID()
	}
	sort.Strings(ids)
	return ids
}

func sameBurstIDs(_ context.Context, job Job) error {
	refNames, secNames := pairGroups(job.Parameters)
	if len(refNames) != len(secNames) {
		return model.NewValidationErrorf(
			"Number of reference and secondary scenes must be the same, got %d and %d",
			len(refNames), len(secNames),
		)
	}
	ref, err := parseBursts(refNames)
	if err != nil {
		return err
	}
	sec, err := parseBursts(secNames)
	if err != nil {
		return err
	}

	refIDs, secIDs := burstIDs(ref), burstIDs(sec)
	for i := 1; i < len(refIDs); i++ {
		if refIDs[i] == refIDs[i-1] {
			return model.NewValidationErrorf("The reference scenes contain duplicate burst ID %s", refIDs[i])
		}
	}
	for i := range refIDs {
		if refIDs[i] != secIDs[i] {
			return model.NewValidationErrorf(
				"The reference and secondary burst IDs are not identical: %s and %s",
				strings.Join(refIDs, ", "), strings.Join(secIDs, ", "),
			)
		}
	}
	return nil
}

func contiguousBursts(_ context.Context, job Job) error {
	refNames, _ := pairGroups(job.Parameters)
	ref, err := parseBursts(refNames)
	if err != nil {
		return err
	}

	bySwath := make(map[string][]int)
	for _, b := range ref {
		bySwath[b.Swath] = append(bySwath[b.Swath], b.BurstNumber)
	}
	swaths := make([]string, 0, len(bySwath))
	for s := range bySwath {
		swaths = append(swaths, s)
	}
	sort.Strings(swaths)

	for _, s := range swaths {
		nums := bySwath[s]
		sort.Ints(nums)
		for i := 1; i < len(nums); i++ {
			if nums[i] != nums[i-1]+1 {
				return model.NewValidationErrorf(
					"The requested bursts in swath %s are not contiguous: %s", s, joinInts(nums),
				)
			}
		}
	}
	for i := 1; i < len(swaths); i++ {
		prev, cur := bySwath[swaths[i-1]][0], bySwath[swaths[i]][0]
		if cur-prev > 1 || prev-cur > 1 {
			return model.NewValidationErrorf(
				"The requested bursts in swaths %s and %s do not overlap along track", swaths[i-1], swaths[i],
			)
		}
	}
	return nil
}

func sameRelativeOrbit(_ context.Context, job Job) error {
	orbits := make(map[string]struct{})
	for _, name := range CatalogNames(SceneNames(job.Parameters)) {
		s, ok := scene.ParseSentinel1(name)
		if !ok {
			return model.NewValidationErrorf("%s is not a Sentinel-1 scene", name)
		}
		orbits[strconv.Itoa(s.RelativeOrbit())] = struct{}{}
	}
	if len(orbits) > 1 {
		return model.NewValidationErrorf(
			"The requested scenes are not from the same relative orbit: %s",
			strings.Join(sortedKeys(orbits), ", "),
		)
	}
	return nil
}

func acquisitionTimes(names []string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(names))
	for _, n := range names {
		t, ok := scene.AcquisitionTime(n)
		if !ok {
			return nil, model.NewValidationErrorf("Unable to determine the acquisition time of %s", n)
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func pairTiming(window time.Duration) Validator {
	return ValidatorFunc(func(_ context.Context, job Job) error {
		refNames, secNames := pairGroups(job.Parameters)
		ref, err := acquisitionTimes(refNames)
		if err != nil {
			return err
		}
		sec, err := acquisitionTimes(secNames)
		if err != nil {
			return err
		}
		if len(ref) == 0 || len(sec) == 0 {
			return model.NewValidationError("A reference and a secondary scene are required")
		}

		groups := []struct {
			label string
			times []time.Time
		}{{"reference", ref}, {"secondary", sec}}
		for _, g := range groups {
			if g.times[len(g.times)-1].Sub(g.times[0]) > window {
				return model.NewValidationErrorf(
					"The %s scenes must be acquired within %s of each other", g.label, window,
				)
			}
		}
		if !ref[len(ref)-1].Before(sec[0]) {
			return model.NewValidationError("The reference scenes must be acquired before the secondary scenes")
		}
		return nil
	})
}

// bounds reads [min_lon, min_lat, max_lon, max_lat] from the job parameters.
func bounds(params map[string]any) ([]float64, error) {
	raw, ok := params["bounds"].([]any)
	if !ok {
		if fl, isFloats := params["bounds"].([]float64); isFloats {
			raw = make([]any, len(fl))
			for i, v := range fl {
				raw[i] = v
			}
		}
	}
	if len(raw) != 4 {
		return nil, model.NewValidationError("bounds must contain exactly 4 values")
	}
	out := make([]float64, 4)
	for i, v := range raw {
		f, ok := asFloat(v)
		if !ok {
			return nil, model.NewValidationErrorf("bounds value %v is not a number", v)
		}
		out[i] = f
	}
	return out, nil
}

func boundsFormatting(_ context.Context, job Job) error {
	b, err := bounds(job.Parameters)
	if err != nil {
		return err
	}
	if b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 0 {
		return model.NewValidationError("Invalid bounds. Bounds cannot be [0, 0, 0, 0].")
	}
	if b[0] >= b[2] || b[1] >= b[3] {
		return model.NewValidationErrorf(
			"Invalid order for bounds %v. The minimum longitude and latitude must be less than the maximums.", b,
		)
	}
	if b[0] < -180 || b[2] > 180 || b[1] < -90 || b[3] > 90 {
		return model.NewValidationErrorf("Invalid longitude or latitude in bounds %v", b)
	}
	return nil
}

func boundsSize(maxArea float64) Validator {
	return ValidatorFunc(func(_ context.Context, job Job) error {
		b, err := bounds(job.Parameters)
		if err != nil {
			return err
		}
		if area := (b[2] - b[0]) * (b[3] - b[1]); area > maxArea {
			return model.NewValidationErrorf(
				"The bounds cover %.2f square degrees, exceeding the maximum of %.2f", area, maxArea,
			)
		}
		return nil
	})
}

func granulesIntersectBounds(_ context.Context, job Job) error {
	b, err := bounds(job.Parameters)
	if err != nil {
		return err
	}
	box := orb.Polygon{geo.Box(b[0], b[1], b[2], b[3])}
	target, err := geo.FromPolygon(box)
	if err != nil {
		return model.NewValidationErrorf("invalid bounds: %v", err)
	}
	shifted, err := geo.FromPolygon(geo.Translate(orb.MultiPolygon{box}, 360)[0])
	if err != nil {
		return model.NewValidationErrorf("invalid bounds: %v", err)
	}

	var bad []string
	for _, g := range job.Granules {
		q, wrapped, err := footprint(g.Polygon, 0)
		if err != nil {
			return invalidFootprint(g.Name, err)
		}
		if !q.Intersects(target) && !(wrapped && q.Intersects(shifted)) {
			bad = append(bad, g.Name)
		}
	}
	if len(bad) > 0 {
		return model.NewValidationErrorf(
			"The following scenes do not intersect the provided bounds: %s", strings.Join(bad, ", "),
		)
	}
	return nil
}

// invalidFootprint turns an unusable catalog footprint into a validation failure naming the
// scene. Other errors pass through.
func invalidFootprint(name string, err error) error {
	if errors.Is(err, geo.ErrInvalidGeometry) {
		return model.NewValidationErrorf("Scene %s has an invalid footprint: %v", name, err)
	}
	return err
}

func operaRTCDateRange(start, end time.Time) Validator {
	return ValidatorFunc(func(_ context.Context, job Job) error {
		for _, name := range SceneNames(job.Parameters) {
			t, ok := scene.AcquisitionTime(name)
			if !ok {
				return model.NewValidationErrorf("Unable to determine the acquisition time of %s", name)
			}
			if t.Before(start) {
				return model.NewValidationErrorf(
					"Granule %s was acquired before %s and is not available for processing",
					name, start.Format(time.DateOnly),
				)
			}
			if !t.Before(end) {
				return model.NewValidationErrorf(
					"Granule %s was acquired on or after %s and is not available for processing",
					name, end.Format(time.DateOnly),
				)
			}
		}
		return nil
	})
}

func staticCoverage(cov *Coverage) Validator {
	return ValidatorFunc(func(_ context.Context, job Job) error {
		if err := cov.Load(); err != nil {
			return fmt.Errorf("static coverage: %w", err)
		}
		for _, g := range job.Granules {
			ok, err := cov.Intersects(g.Polygon)
			if err != nil {
				return fmt.Errorf("static coverage: %w", invalidFootprint(g.Name, err))
			}
			if !ok {
				return model.NewValidationErrorf(
					"Granule %s is outside the valid processing extent for OPERA RTC-S1 products", g.Name,
				)
			}
		}
		return nil
	})
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
