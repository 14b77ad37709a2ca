// Package metrics emits the StatsD series for admission and catalog activity.
package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/target/sarbatch/internal/observability/errors"
	"github.com/target/sarbatch/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDryRun  = "dry_run"
)

// AdmissionMetric captures the outcome of one batch admission.
type AdmissionMetric struct {
	Jobs     int
	Credits  float64
	Result   string
	Duration time.Duration
	Err      error
}

// EmitAdmission emits the batch counter, job counter, credits gauge and latency timer.
func EmitAdmission(sink statsd.Sink, in AdmissionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"result": in.Result}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("admission.batch", 1, tags)
	if in.Result != ResultError {
		sink.Count("admission.jobs", int64(in.Jobs), CloneTags(tags))
		sink.Gauge("admission.credits", in.Credits, CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("admission.duration", in.Duration, CloneTags(tags))
	}
}

// CatalogMetric captures one catalog lookup.
type CatalogMetric struct {
	Requested int
	Found     int
	Duration  time.Duration
	Err       error
}

// EmitCatalogLookup emits lookup counts and latency.
func EmitCatalogLookup(sink statsd.Sink, in CatalogMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	if in.Err != nil {
		result = ResultError
	}
	tags := map[string]string{"result": result}

	sink.Count("catalog.lookup", 1, tags)
	if in.Err == nil {
		sink.Count("catalog.granules", int64(in.Found), map[string]string{
			"complete": strconv.FormatBool(in.Found >= in.Requested),
		})
	}
	if in.Duration > 0 {
		sink.Timing("catalog.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
