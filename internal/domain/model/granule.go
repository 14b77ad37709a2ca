package model

import "github.com/paulmach/orb"

// Granule is the catalog metadata for one scene referenced by a batch.
type Granule struct {
	Name    string      `json:"name"`
	Polygon orb.Polygon `json:"polygon"`
}

// GranuleIndex maps scene names to their metadata.
type GranuleIndex map[string]Granule

// IndexGranules builds a GranuleIndex. Later duplicates overwrite earlier ones.
func IndexGranules(granules []Granule) GranuleIndex {
	idx := make(GranuleIndex, len(granules))
	for _, g := range granules {
		idx[g.Name] = g
	}
	return idx
}

// Subset returns the metadata for names that are present in the index, in the order given.
func (idx GranuleIndex) Subset(names []string) []Granule {
	out := make([]Granule, 0, len(names))
	for _, n := range names {
		if g, ok := idx[n]; ok {
			out = append(out, g)
		}
	}
	return out
}
