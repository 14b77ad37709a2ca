package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/target/sarbatch/internal/domain/model"
	"github.com/target/sarbatch/internal/domain/scene"
)

// GranuleParameters are the job parameters that reference scenes by name.
var GranuleParameters = []string{"granules", "reference", "secondary"}

// SceneNames returns the scene names referenced by params, in parameter then list order.
func SceneNames(params map[string]any) []string {
	var names []string
	for _, key := range GranuleParameters {
		names = append(names, stringList(params, key)...)
	}
	return names
}

// UnionSceneNames returns the sorted distinct scene names referenced across jobs.
func UnionSceneNames(params ...map[string]any) []string {
	seen := make(map[string]struct{})
	for _, p := range params {
		for _, n := range SceneNames(p) {
			seen[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// CatalogNames drops the names the primary catalog does not serve.
func CatalogNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !scene.IsThirdParty(n) {
			out = append(out, n)
		}
	}
	return out
}

// CheckExistence fails when a referenced, non third-party scene is missing from granules.
func CheckExistence(names []string, granules model.GranuleIndex) error {
	var missing []string
	for _, n := range CatalogNames(names) {
		if _, ok := granules[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return model.NewValidationErrorf(
		"Some requested scenes could not be found: %s", strings.Join(dedupe(missing), ", "),
	)
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for _, s := range sorted {
		if len(out) == 0 || out[len(out)-1] != s {
			out = append(out, s)
		}
	}
	return out
}

func stringList(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}
