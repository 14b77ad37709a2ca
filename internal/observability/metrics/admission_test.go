package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/sarbatch/internal/domain/model"
)

type recordedMetric struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

type recordingSink struct {
	mu      sync.Mutex
	metrics []recordedMetric
}

func (s *recordingSink) Count(name string, value int64, tags map[string]string) {
	s.record("count", name, float64(value), tags)
}

func (s *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	s.record("gauge", name, value, tags)
}

func (s *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	s.record("timing", name, float64(value.Milliseconds()), tags)
}

func (s *recordingSink) record(kind, name string, value float64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, recordedMetric{kind: kind, name: name, value: value, tags: tags})
}

func (s *recordingSink) find(name string) (recordedMetric, bool) {
	for _, m := range s.metrics {
		if m.name == name {
			return m, true
		}
	}
	return recordedMetric{}, false
}

func TestEmitAdmission_Success(t *testing.T) {
	sink := &recordingSink{}
	EmitAdmission(sink, AdmissionMetric{Jobs: 3, Credits: 45, Result: ResultSuccess, Duration: 20 * time.Millisecond})

	batch, ok := sink.find("admission.batch")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"result": "success"}, batch.tags)

	jobs, ok := sink.find("admission.jobs")
	require.True(t, ok)
	assert.InDelta(t, 3, jobs.value, 0)

	credits, ok := sink.find("admission.credits")
	require.True(t, ok)
	assert.InDelta(t, 45, credits.value, 0)

	_, ok = sink.find("admission.duration")
	assert.True(t, ok)
}

func TestEmitAdmission_ErrorIsClassified(t *testing.T) {
	sink := &recordingSink{}
	EmitAdmission(sink, AdmissionMetric{Result: ResultError, Err: model.NewValidationError("bad")})

	batch, ok := sink.find("admission.batch")
	require.True(t, ok)
	assert.Equal(t, "validation", batch.tags["error_class"])

	_, ok = sink.find("admission.jobs")
	assert.False(t, ok)
	_, ok = sink.find("admission.duration")
	assert.False(t, ok)
}

func TestEmitCatalogLookup(t *testing.T) {
	sink := &recordingSink{}
	EmitCatalogLookup(sink, CatalogMetric{Requested: 4, Found: 3, Duration: time.Second})

	granules, ok := sink.find("catalog.granules")
	require.True(t, ok)
	assert.Equal(t, "false", granules.tags["complete"])
	assert.InDelta(t, 3, granules.value, 0)
}

func TestEmitNilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitAdmission(nil, AdmissionMetric{Result: ResultSuccess})
		EmitCatalogLookup(nil, CatalogMetric{})
	})
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))
	src := map[string]string{"a": "b"}
	dst := CloneTags(src)
	dst["a"] = "c"
	assert.Equal(t, "b", src["a"])
}
