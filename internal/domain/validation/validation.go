// Package validation implements the checks a batch must pass before it is priced and admitted.
//
// Validation runs in two phases. CheckExistence verifies that every referenced scene was
// returned by the catalog, then each job runs the ordered Chain of validators declared for
// its job type, stopping at the first failure.
package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/target/sarbatch/internal/domain/model"
)

// Defaults used when an Environment leaves a field unset.
const (
	DefaultPairWindow    = 2 * time.Minute
	DefaultMaxBoundsArea = 4.5
)

var (
	// DefaultOperaRTCStart is the first acquisition date OPERA RTC-S1 products can be built from.
	DefaultOperaRTCStart = time.Date(2016, 4, 14, 0, 0, 0, 0, time.UTC)
	// DefaultOperaRTCEnd is the exclusive upper bound of the on-demand OPERA RTC-S1 window.
	DefaultOperaRTCEnd = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Job is the view of a single job a validator inspects.
type Job struct {
	JobType    model.JobType
	Parameters map[string]any
	// Granules holds the catalog metadata of the scenes this job references.
	Granules []model.Granule
}

// Validator checks one business rule. A failure is returned as a *model.ValidationError;
// any other error is an internal fault.
type Validator interface {
	Validate(ctx context.Context, job Job) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, job Job) error

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, job Job) error { return f(ctx, job) }

// Environment carries the reference data and limits validators depend on.
type Environment struct {
	DEMCoverage     *Coverage
	StaticCoverage  *Coverage
	// CoverageOptions nil means DefaultCoverageOptions; a zero value is used as given.
	CoverageOptions *CoverageOptions
	OperaRTCStart   time.Time
	OperaRTCEnd     time.Time
	PairWindow      time.Duration
	MaxBoundsArea   float64
}

func (e Environment) withDefaults() Environment {
	if e.DEMCoverage == nil {
		e.DEMCoverage = DefaultDEMCoverage()
	}
	if e.StaticCoverage == nil {
		e.StaticCoverage = DefaultStaticCoverage()
	}
	if e.CoverageOptions == nil {
		opts := DefaultCoverageOptions()
		e.CoverageOptions = &opts
	}
	if e.OperaRTCStart.IsZero() {
		e.OperaRTCStart = DefaultOperaRTCStart
	}
	if e.OperaRTCEnd.IsZero() {
		e.OperaRTCEnd = DefaultOperaRTCEnd
	}
	if e.PairWindow <= 0 {
		e.PairWindow = DefaultPairWindow
	}
	if e.MaxBoundsArea <= 0 {
		e.MaxBoundsArea = DefaultMaxBoundsArea
	}
	return e
}

// Registry resolves validator kinds to implementations.
type Registry struct {
	validators map[Kind]Validator
}

// NewRegistry returns a registry holding every built-in validator bound to env.
func NewRegistry(env Environment) *Registry {
	env = env.withDefaults()
	return &Registry{validators: map[Kind]Validator{
		KindDEMCoverage:            demCoverage(env.DEMCoverage, *env.CoverageOptions),
		KindValidPolarizations:     ValidatorFunc(validPolarizations),
		KindSameBurstIDs:           ValidatorFunc(sameBurstIDs),
		KindContiguousBursts:       ValidatorFunc(contiguousBursts),
		KindSameRelativeOrbit:      ValidatorFunc(sameRelativeOrbit),
		KindPairTiming:             pairTiming(env.PairWindow),
		KindBoundsFormatting:       ValidatorFunc(boundsFormatting),
		KindBoundsSize:             boundsSize(env.MaxBoundsArea),
		KindGranulesIntersectBound: ValidatorFunc(granulesIntersectBounds),
		KindOperaRTCDateRange:      operaRTCDateRange(env.OperaRTCStart, env.OperaRTCEnd),
		KindStaticCoverage:         staticCoverage(env.StaticCoverage),
	}}
}

// Register replaces the implementation of kind.
func (r *Registry) Register(kind Kind, v Validator) {
	r.validators[kind] = v
}

// Lookup returns the validator for kind.
func (r *Registry) Lookup(kind Kind) (Validator, bool) {
	v, ok := r.validators[kind]
	return v, ok
}

// Chain resolves kinds, in order, into a runnable chain.
func (r *Registry) Chain(kinds []Kind) (Chain, error) {
	chain := make(Chain, 0, len(kinds))
	for _, k := range kinds {
		v, ok := r.validators[k]
		if !ok {
			return nil, fmt.Errorf("no validator registered for %q", k)
		}
		chain = append(chain, link{kind: k, validator: v})
	}
	return chain, nil
}

type link struct {
	kind      Kind
	validator Validator
}

// Chain is an ordered list of validators for one job type.
type Chain []link

// Kinds returns the kinds in the order they run.
func (c Chain) Kinds() []Kind {
	out := make([]Kind, len(c))
	for i, l := range c {
		out[i] = l.kind
	}
	return out
}

// Run executes each validator in order and returns the first failure.
func (c Chain) Run(ctx context.Context, job Job) error {
	for _, l := range c {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.validator.Validate(ctx, job); err != nil {
			return err
		}
	}
	return nil
}
