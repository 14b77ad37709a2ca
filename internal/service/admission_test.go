package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/sarbatch/internal/core"
	"github.com/target/sarbatch/internal/data/memstore"
	"github.com/target/sarbatch/internal/domain/jobspec"
	"github.com/target/sarbatch/internal/domain/model"
	"github.com/target/sarbatch/internal/domain/validation"
	"github.com/target/sarbatch/internal/mocks"
	"github.com/target/sarbatch/internal/observability/notify"
	"go.uber.org/mock/gomock"
)

const testCatalogue = `
FLAT:
  parameters:
    granules: {type: string_list, required: true, min_items: 1, max_items: 2}
  cost: {cost: 1}
  validators: []

PRICED:
  parameters:
    granules: {type: string_list, required: true, min_items: 1, max_items: 1}
    resolution: {type: number, default: 30, enum: [10, 30]}
  cost:
    cost_parameter: resolution
    cost_table:
      - {parameter_value: 30, cost: 5}
      - {parameter_value: 10, cost: 60}
  validators: [dem_coverage]
`

// batchTime is deliberately not on a second boundary.
var batchTime = time.Date(2024, 3, 10, 8, 30, 0, 750_000_000, time.UTC)

// catalogFunc adapts a function to core.CatalogClient.
type catalogFunc func(ctx context.Context, names []string) ([]model.Granule, error)

func (f catalogFunc) Lookup(ctx context.Context, names []string) ([]model.Granule, error) {
	return f(ctx, names)
}

// knownScenes returns every requested scene except names containing "MISSING".
func knownScenes() catalogFunc {
	return func(_ context.Context, names []string) ([]model.Granule, error) {
		out := make([]model.Granule, 0, len(names))
		for _, n := range names {
			if strings.Contains(n, "MISSING") {
				continue
			}
			out = append(out, model.Granule{Name: n, Polygon: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}})
		}
		return out, nil
	}
}

// createOnly hides CommitBatch so admission falls back to a separate debit and insert.
type createOnly struct {
	core.JobRepository
}

func hideCommit(r core.JobRepository) core.JobRepository { return createOnly{r} }

type admissionFixture struct {
	svc    *AdmissionService
	ledger *LedgerService
	store  *memstore.Store
}

type fixtureOptions struct {
	// jobs replaces the fixture store's job repository.
	jobs core.JobRepository
	// wrap decorates the fixture store's job repository.
	wrap    func(core.JobRepository) core.JobRepository
	catalog   core.CatalogClient
	incidents IncidentNotifier
	max       int
}

type incidentFunc func(ctx context.Context, payload notify.IncidentPayload)

func (f incidentFunc) NotifyIncident(ctx context.Context, payload notify.IncidentPayload) {
	f(ctx, payload)
}

func newAdmissionFixture(t *testing.T, opts fixtureOptions) *admissionFixture {
	t.Helper()
	store := memstore.MustNew(memstore.Options{Now: fixedNow})
	ledger := MustNewLedgerService(LedgerServiceOptions{Repo: store.Users(), Config: LedgerConfig{Now: fixedNow}})

	catalogue, err := jobspec.Parse([]byte(testCatalogue))
	require.NoError(t, err)

	registry := validation.NewRegistry(validation.Environment{})
	registry.Register(validation.KindDEMCoverage, validation.ValidatorFunc(
		func(_ context.Context, job validation.Job) error {
			for _, g := range job.Granules {
				if strings.Contains(g.Name, "OCEAN") {
					return model.NewValidationErrorf("%s does not have DEM coverage", g.Name)
				}
			}
			return nil
		},
	))

	var jobs core.JobRepository = store.Jobs()
	switch {
	case opts.jobs != nil:
		jobs = opts.jobs
	case opts.wrap != nil:
		jobs = opts.wrap(jobs)
	}
	catalog := opts.catalog
	if catalog == nil {
		catalog = knownScenes()
	}

	svc := MustNewAdmissionService(AdmissionServiceOptions{
		Ledger:    ledger,
		Jobs:      jobs,
		Catalog:   catalog,
		Catalogue: catalogue,
		Registry:  registry,
		Incidents: opts.incidents,
		Config: AdmissionConfig{
			MaxJobsPerBatch: opts.max,
			Now:             func() time.Time { return batchTime },
		},
	})
	return &admissionFixture{svc: svc, ledger: ledger, store: store}
}

func (f *admissionFixture) seed(t *testing.T, userID string, balance decimal.NullDecimal, status model.ApplicationStatus) {
	t.Helper()
	seedLedgerUser(t, f.store, userID, balance, "2024-03", status)
}

func (f *admissionFixture) balance(t *testing.T, userID string) decimal.NullDecimal {
	t.Helper()
	u, err := f.ledger.Get(context.Background(), userID)
	require.NoError(t, err)
	return u.RemainingCredits
}

func (f *admissionFixture) storedJobs(t *testing.T, userID string) []*model.Job {
	t.Helper()
	page, err := f.store.Jobs().List(context.Background(), model.JobListOptions{UserID: &userID})
	require.NoError(t, err)
	return page.Jobs
}

func flatJobs(n int) []model.JobRequest {
	out := make([]model.JobRequest, n)
	for i := range out {
		out[i] = model.JobRequest{JobType: "FLAT", JobParameters: map[string]any{"granules": []any{"S1A_SCENE"}}}
	}
	return out
}

func pricedJob(granule string) model.JobRequest {
	return model.JobRequest{JobType: "PRICED", JobParameters: map[string]any{"granules": []any{granule}}}
}

func TestAdmitBatch_AdmitsAndDebits(t *testing.T) {
	f := newAdmissionFixture(t, fixtureOptions{})
	f.seed(t, "alice", credits(100), model.ApplicationApproved)
	name := "first"
	sub := "sub-1"

	reqs := []model.JobRequest{pricedJob("S1A_ONE"), pricedJob("S1A_TWO"), pricedJob("S1A_THREE")}
	reqs[0].Name = &name
	reqs[2].JobParameters["resolution"] = 10.0

	jobs, err := f.svc.AdmitBatch(context.Background(), model.BatchRequest{
		UserID: "alice", Jobs: reqs, SubscriptionID: &sub,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, []int{100, 95, 90}, []int{jobs[0].Priority, jobs[1].Priority, jobs[2].Priority})
	assert.True(t, decimal.NewFromInt(60).Equal(jobs[2].CreditCost))
	assert.Equal(t, 30, jobs[0].JobParameters["resolution"], "default merged")
	assert.Equal(t, &name, jobs[0].Name)

	ids := map[string]bool{}
	for _, j := range jobs {
		assert.Equal(t, "alice", j.UserID)
		assert.Equal(t, model.JobStatusPending, j.StatusCode)
		assert.False(t, j.ExecutionStarted)
		assert.Equal(t, batchTime.Truncate(time.Second), j.RequestTime)
		assert.Equal(t, &sub, j.SubscriptionID)
		ids[j.JobID] = true
	}
	assert.Len(t, ids, 3)

	assert.True(t, decimal.NewFromInt(30).Equal(f.balance(t, "alice").Decimal), "100 - (5+5+60)")
	assert.Len(t, f.storedJobs(t, "alice"), 3)
}

func TestAdmitBatch_Priorities(t *testing.T) {
	override := 100
	tests := []struct {
		name     string
		balance  decimal.NullDecimal
		override *int
		jobs     int
		want     []int
	}{
		{name: "running cost lowers priority", balance: credits(7), jobs: 3, want: []int{7, 6, 5}},
		{
			name: "clamped at the maximum", balance: credits(10003), jobs: 8,
			want: []int{9999, 9999, 9999, 9999, 9999, 9998, 9997, 9996},
		},
		{name: "override wins", balance: credits(7), override: &override, jobs: 3, want: []int{100, 100, 100}},
		{name: "unlimited users get zero", balance: decimal.NullDecimal{}, jobs: 3, want: []int{0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdmissionFixture(t, fixtureOptions{})
			f.seed(t, "alice", tt.balance, model.ApplicationApproved)
			if tt.override != nil {
				_, err := f.ledger.SetPriorityOverride(context.Background(), "alice", tt.override)
				require.NoError(t, err)
			}

			jobs, err := f.svc.AdmitBatch(context.Background(), model.BatchRequest{UserID: "alice", Jobs: flatJobs(tt.jobs)})
			require.NoError(t, err)
			got := make([]int, len(jobs))
			for i, j := range jobs {
				got[i] = j.Priority
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdmitBatch_UnlimitedUsersAreNotCharged(t *testing.T) {
	f := newAdmissionFixture(t, fixtureOptions{})
	f.seed(t, "alice", decimal.NullDecimal{}, model.ApplicationApproved)

	_, err := f.svc.AdmitBatch(context.Background(), model.BatchRequest{UserID: "alice", Jobs: flatJobs(5)})
	require.NoError(t, err)
	assert.False(t, f.balance(t, "alice").Valid)
	assert.Len(t, f.storedJobs(t, "alice"), 5)
}

func TestAdmitBatch_RejectionsHaveNoSideEffects(t *testing.T) {
	tests := []struct {
		name    string
		jobs    []model.JobRequest
		target  error
		message string
	}{
		{
			name:    "validator failure",
			jobs:    []model.JobRequest{pricedJob("S1A_LAND"), pricedJob("S1A_OCEAN")},
			target:  model.ErrValidation,
			message: "S1A_OCEAN does not have DEM coverage",
		},
		{
			name:    "missing scenes",
			jobs:    []model.JobRequest{pricedJob("S1A_MISSING_B"), pricedJob("S1A_MISSING_A"), pricedJob("S1A_OK")},
			target:  model.ErrValidation,
			message: "could not be found: S1A_MISSING_A, S1A_MISSING_B",
		},
		{
			name:    "unknown job type",
			jobs:    []model.JobRequest{{JobType: "WATER_MAP", JobParameters: map[string]any{}}},
			target:  model.ErrValidation,
			message: "Unknown job type WATER_MAP",
		},
		{
			name:    "bad parameter",
			jobs:    []model.JobRequest{{JobType: "PRICED", JobParameters: map[string]any{"granules": []any{"S1A_X"}, "resolution": 20.0}}},
			target:  model.ErrValidation,
			message: "Invalid resolution",
		},
		{
			name:    "insufficient credits",
			jobs:    []model.JobRequest{pricedJob("S1A_ONE"), pricedJob("S1A_TWO")},
			target:  model.ErrInsufficientCredits,
			message: "cost 10 credits, but you have only 8 remaining (short by 2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdmissionFixture(t, fixtureOptions{})
			f.seed(t, "alice", credits(8), model.ApplicationApproved)

			_, err := f.svc.AdmitBatch(context.Background(), model.BatchRequest{UserID: "alice", Jobs: tt.jobs})
			require.ErrorIs(t, err, tt.target)
			assert.Contains(t, err.Error(), tt.message)
			assert.True(t, decimal.NewFromInt(8).Equal(f.balance(t, "alice").Decimal))
			assert.Empty(t, f.storedJobs(t, "alice"))
		})
	}
}

func TestAdmitBatch_ThirdPartyScenesSkipTheCatalog(t *testing.T) {
	var requested []string
	f := newAdmissionFixture(t, fixtureOptions{catalog: catalogFunc(
		func(_ context.Context, names []string) ([]model.Granule, error) {
			requested = append(requested, names...)
			return knownScenes()(context.Background(), names)
		},
	)})
	f.seed(t, "alice", credits(10), model.ApplicationApproved)

	jobs, err := f.svc.AdmitBatch(context.Background(), model.BatchRequest{
		UserID: "alice",
		Jobs: []model.JobRequest{{
			JobType:       "FLAT",
			JobParameters: map[string]any{"granules": []any{"S2B_MSIL1C_20200612T150759_N0209_R025_T22WEB_20200612T184700", "S1A_SCENE"}},
		}},
	})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.Equal(t, []string{"S1A_SCENE"}, requested)
}

func TestAdmitBatch_CatalogOutage(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"typed", model.ErrCatalogUnavailable},
		{"untyped", errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdmissionFixture(t, fixtureOptions{catalog: catalogFunc(
				func(context.Context, []string) ([]model.Granule, error) { return nil, tt.err },
			)})
			f.seed(t, "alice", credits(10), model.ApplicationApproved)

			_, err := f.svc.AdmitBatch(context.Background(), model.BatchRequest{UserID: "alice", Jobs: flatJobs(1)})
			require.ErrorIs(t, err, model.ErrCatalogUnavailable)
			assert.NotErrorIs(t, err, model.ErrValidation)
			assert.True(t, decimal.NewFromInt(10).Equal(f.balance(t, "alice").Decimal))
		})
	}
}

func TestAdmitBatch_ValidateOnly(t *testing.T) {
	f := newAdmissionFixture(t, fixtureOptions{})
	f.seed(t, "alice", credits(10), model.ApplicationApproved)

	jobs, err := f.svc.AdmitBatch(context.Background(), model.BatchRequest{
		UserID: "alice", Jobs: []model.JobRequest{pricedJob("S1A_ONE")}, ValidateOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, decimal.NewFromInt(5).Equal(jobs[0].CreditCost))
	assert.NotEmpty(t, jobs[0].JobID)

	assert.True(t, decimal.NewFromInt(10).Equal(f.balance(t, "alice").Decimal))
	assert.Empty(t, f.storedJobs(t, "alice"))
}

func TestAdmitBatch_ApplicationGating(t *testing.T) {
	tests := []struct {
		status model.ApplicationStatus
		want   error
	}{
		{model.ApplicationNotStarted, model.ErrApplicationNotStarted},
		{model.ApplicationPending, model.ErrApplicationPending},
		{model.ApplicationRejected, model.ErrApplicationRejected},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			ctrl := gomock.NewController(t)
			catalog := mocks.NewMockCatalogClient(ctrl)
			f := newAdmissionFixture(t, fixtureOptions{catalog: catalog})
			f.seed(t, "alice", credits(10), tt.status)

			_, err := f.svc.AdmitBatch(context.Background(), model.BatchRequest{UserID: "alice", Jobs: flatJobs(1)})
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.storedJobs(t, "alice"))
		})
	}
}

func TestAdmitBatch_FirstSubmissionCreatesTheUser(t *testing.T) {
	f := newAdmissionFixture(t, fixtureOptions{})

	_, err := f.svc.AdmitBatch(context.Background(), model.BatchRequest{UserID: "newcomer", Jobs: flatJobs(1)})
	require.ErrorIs(t, err, model.ErrApplicationNotStarted)

	user, err := f.ledger.Get(context.Background(), "newcomer")
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationNotStarted, user.ApplicationStatus)
}

func TestAdmitBatch_BatchEnvelope(t *testing.T) {
	f := newAdmissionFixture(t, fixtureOptions{max: 2})
	f.seed(t, "alice", credits(10), model.ApplicationApproved)

	_, err := f.svc.AdmitBatch(context.Background(), model.BatchRequest{UserID: "alice"})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.AdmitBatch(context.Background(), model.BatchRequest{UserID: "alice", Jobs: flatJobs(3)})
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Contains(t, err.Error(), "at most 2")
}

func TestAdmitBatch_SeparateDebitAndInsert(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newAdmissionFixture(t, fixtureOptions{wrap: hideCommit})
		f.seed(t, "alice", credits(10), model.ApplicationApproved)

		_, err := f.svc.AdmitBatch(context.Background(), model.BatchRequest{UserID: "alice", Jobs: flatJobs(2)})
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(8).Equal(f.balance(t, "alice").Decimal))
	})

	t.Run("insert failure after debit is inconsistent", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().CreateBatch(gomock.Any(), gomock.Len(2)).Return(errors.New("disk full"))

		var reported []notify.IncidentPayload
		f := newAdmissionFixture(t, fixtureOptions{jobs: repo, incidents: incidentFunc(
			func(_ context.Context, p notify.IncidentPayload) { reported = append(reported, p) },
		)})
		f.seed(t, "alice", credits(10), model.ApplicationApproved)

		_, err := f.svc.AdmitBatch(context.Background(), model.BatchRequest{UserID: "alice", Jobs: flatJobs(2)})
		require.ErrorIs(t, err, model.ErrInconsistentState)
		assert.Contains(t, err.Error(), "disk full")

		require.Len(t, reported, 1)
		assert.Equal(t, notify.KindInconsistentLedger, reported[0].Kind)
		assert.Equal(t, "alice", reported[0].UserID)
		assert.Equal(t, "2", reported[0].Amount)
		assert.Len(t, reported[0].JobIDs, 2)
		assert.Equal(t, "inconsistent_state", reported[0].ErrorClass)
	})

	t.Run("insert failure without debit is plain", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().CreateBatch(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

		f := newAdmissionFixture(t, fixtureOptions{jobs: repo})
		f.seed(t, "alice", decimal.NullDecimal{}, model.ApplicationApproved)

		_, err := f.svc.AdmitBatch(context.Background(), model.BatchRequest{UserID: "alice", Jobs: flatJobs(1)})
		require.Error(t, err)
		assert.NotErrorIs(t, err, model.ErrInconsistentState)
	})
}

func TestAdmitBatch_ConcurrentSubmissionsNeverOverdraw(t *testing.T) {
	for _, tc := range []struct {
		name string
		wrap func(core.JobRepository) core.JobRepository
	}{
		{"single transaction", nil},
		{"separate debit", hideCommit},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newAdmissionFixture(t, fixtureOptions{wrap: tc.wrap})
			f.seed(t, "alice", credits(5), model.ApplicationApproved)

			const workers = 4
			errs := make([]error, workers)
			var wg sync.WaitGroup
			for i := range workers {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = f.svc.AdmitBatch(context.Background(), model.BatchRequest{
						UserID: "alice", Jobs: []model.JobRequest{pricedJob("S1A_ONE")},
					})
				}(i)
			}
			wg.Wait()

			admitted := 0
			for _, err := range errs {
				if err == nil {
					admitted++
					continue
				}
				require.ErrorIs(t, err, model.ErrInsufficientCredits)
			}
			assert.Equal(t, 1, admitted)
			assert.True(t, f.balance(t, "alice").Decimal.IsZero())
			assert.Len(t, f.storedJobs(t, "alice"), 1)
		})
	}
}
