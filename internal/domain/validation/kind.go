package validation

import "fmt"

// Kind names a validator a job type may list in the catalogue.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Kind string

const (
	KindDEMCoverage            Kind = "dem_coverage"
	KindValidPolarizations     Kind = "valid_polarizations"
	KindSameBurstIDs           Kind = "same_burst_ids"
	KindContiguousBursts       Kind = "contiguous_bursts"
	KindSameRelativeOrbit      Kind = "same_relative_orbit"
	KindPairTiming             Kind = "pair_timing"
	KindBoundsFormatting       Kind = "bounds_formatting"
	KindBoundsSize             Kind = "bounds_size"
	KindGranulesIntersectBound Kind = "granules_intersect_bounds"
	KindOperaRTCDateRange      Kind = "opera_rtc_date_range"
	KindStaticCoverage         Kind = "static_coverage"
)

// AllKinds lists every recognized validator kind.
func AllKinds() []Kind {
	return []Kind{
		KindDEMCoverage,
		KindValidPolarizations,
		KindSameBurstIDs,
		KindContiguousBursts,
		KindSameRelativeOrbit,
		KindPairTiming,
		KindBoundsFormatting,
		KindBoundsSize,
		KindGranulesIntersectBound,
		KindOperaRTCDateRange,
		KindStaticCoverage,
	}
}

// Valid reports whether k is a recognized kind.
func (k Kind) Valid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// UnmarshalText rejects unknown kinds while decoding the catalogue.
func (k *Kind) UnmarshalText(text []byte) error {
	v := Kind(text)
	if !v.Valid() {
		return fmt.Errorf("unknown validator %q", string(text))
	}
	*k = v
	return nil
}
