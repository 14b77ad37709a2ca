package jobspec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/sarbatch/internal/domain/model"
	"github.com/target/sarbatch/internal/domain/validation"
)

func defaultCatalogue(t *testing.T) *Catalogue {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return c
}

func TestDefault_ParsesAndResolves(t *testing.T) {
	c := defaultCatalogue(t)

	assert.Contains(t, c.JobTypes(), model.JobType("RTC_GAMMA"))
	assert.Contains(t, c.JobTypes(), model.JobType("INSAR_ISCE_MULTI_BURST"))

	chains, err := c.Chains(validation.NewRegistry(validation.Environment{}))
	require.NoError(t, err)
	assert.Equal(t,
		[]validation.Kind{
			validation.KindValidPolarizations,
			validation.KindSameRelativeOrbit,
			validation.KindPairTiming,
			validation.KindDEMCoverage,
		},
		chains["INSAR_GAMMA"].Kinds(),
	)
	assert.Empty(t, chains["AUTORIFT"].Kinds())
}

func TestPrepare_MergesDefaults(t *testing.T) {
	c := defaultCatalogue(t)

	merged, err := c.Prepare(model.JobRequest{
		JobType:       "RTC_GAMMA",
		JobParameters: map[string]any{"granules": []any{"S1A_X"}, "resolution": 10.0},
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, merged["resolution"], "caller value wins")
	assert.Equal(t, "gamma0", merged["radiometry"])
	assert.Equal(t, false, merged["speckle_filter"])

	price, err := c.Costs().Compute("RTC_GAMMA", merged)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(60).Equal(price))
}

func TestPrepare_DefaultsDriveCost(t *testing.T) {
	c := defaultCatalogue(t)

	merged, err := c.Prepare(model.JobRequest{
		JobType:       "RTC_GAMMA",
		JobParameters: map[string]any{"granules": []any{"S1A_X"}},
	})
	require.NoError(t, err)
	price, err := c.Costs().Compute("RTC_GAMMA", merged)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5).Equal(price))

	merged, err = c.Prepare(model.JobRequest{
		JobType: "INSAR_ISCE_MULTI_BURST",
		JobParameters: map[string]any{
			"reference": []any{"a", "b", "c"},
			"secondary": []any{"d", "e", "f"},
			"looks":     "5x1",
		},
	})
	require.NoError(t, err)
	price, err = c.Costs().Compute("INSAR_ISCE_MULTI_BURST", merged)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(6).Equal(price))
}

func TestPrepare_Rejects(t *testing.T) {
	c := defaultCatalogue(t)
	long := string(make([]byte, model.MaxJobNameLength+1))

	tests := []struct {
		name    string
		req     model.JobRequest
		wantErr string
	}{
		{
			name:    "unknown job type",
			req:     model.JobRequest{JobType: "WATER_MAP"},
			wantErr: "Unknown job type WATER_MAP",
		},
		{
			name:    "unknown parameter",
			req:     model.JobRequest{JobType: "AUTORIFT", JobParameters: map[string]any{"granules": []any{"a", "b"}, "foo": 1}},
			wantErr: "Unknown parameter foo",
		},
		{
			name:    "missing required",
			req:     model.JobRequest{JobType: "AUTORIFT", JobParameters: map[string]any{}},
			wantErr: "Missing required parameter granules",
		},
		{
			name:    "wrong type",
			req:     model.JobRequest{JobType: "RTC_GAMMA", JobParameters: map[string]any{"granules": "a"}},
			wantErr: "expected string_list",
		},
		{
			name:    "too many items",
			req:     model.JobRequest{JobType: "RTC_GAMMA", JobParameters: map[string]any{"granules": []any{"a", "b"}}},
			wantErr: "at most 1 items",
		},
		{
			name: "not in enum",
			req: model.JobRequest{
				JobType:       "RTC_GAMMA",
				JobParameters: map[string]any{"granules": []any{"a"}, "resolution": 15.0},
			},
			wantErr: "is not one of",
		},
		{
			name: "above maximum",
			req: model.JobRequest{
				JobType:       "INSAR_GAMMA",
				JobParameters: map[string]any{"granules": []any{"a", "b"}, "phase_filter_parameter": 1.5},
			},
			wantErr: "greater than the maximum",
		},
		{
			name: "name too long",
			req: model.JobRequest{
				JobType: "AUTORIFT", Name: &long, JobParameters: map[string]any{"granules": []any{"a", "b"}},
			},
			wantErr: "at most 100 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Prepare(tt.req)
			require.ErrorIs(t, err, model.ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_AggregatesProblems(t *testing.T) {
	_, err := Parse([]byte(`
BROKEN:
  parameters:
    granules:
      type: string_list
      required: true
      default: [a]
    speed:
      type: velocity
  cost:
    price: 3
  validators: [dem_coverage, dem_coverage]
NO_GRANULES:
  parameters:
    looks: {type: string}
  cost: {cost: 1}
`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "BROKEN parameter granules")
	assert.Contains(t, msg, "BROKEN parameter speed")
	assert.Contains(t, msg, "cost definition for job type BROKEN has invalid keys")
	assert.Contains(t, msg, "lists validator dem_coverage twice")
	assert.Contains(t, msg, "NO_GRANULES declares no granule parameter")
}

func TestParse_UnknownValidator(t *testing.T) {
	_, err := Parse([]byte(`
X:
  parameters:
    granules: {type: string_list}
  cost: {cost: 1}
  validators: [check_everything]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown validator")
}

func TestLoad_FromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "specs.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
ONLY:
  parameters:
    granules: {type: string_list, min_items: 1}
  cost: {cost: 2.5}
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []model.JobType{"ONLY"}, c.JobTypes())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
