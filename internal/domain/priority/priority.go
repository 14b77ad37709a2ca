// Package priority computes the scheduling priority stamped on admitted jobs.
package priority

import (
	"github.com/shopspring/decimal"
)

// Max is the highest priority a job can be assigned from its owner's balance.
const Max = 9999

// Unlimited is the priority given to every job of a user with unlimited credits.
const Unlimited = 0

// Input describes the state a single job's priority is derived from.
type Input struct {
	// RemainingCredits is the balance before the batch; invalid means unlimited.
	RemainingCredits decimal.NullDecimal
	// Override, when non-nil and non-zero, replaces the computed priority.
	Override *int
	// RunningCost is the summed cost of the jobs ahead of this one in the same batch.
	RunningCost decimal.Decimal
}

// Assign returns floor(remaining - running) capped at Max. There is no lower clamp:
// batches that would go negative are rejected before they are persisted.
func Assign(in Input) int {
	if in.Override != nil && *in.Override != 0 {
		return *in.Override
	}
	if !in.RemainingCredits.Valid {
		return Unlimited
	}
	p := in.RemainingCredits.Decimal.Sub(in.RunningCost).Floor()
	if p.GreaterThan(decimal.NewFromInt(Max)) {
		return Max
	}
	return int(p.IntPart())
}

// AssignBatch returns the priority of each job given the per-job costs in submission order.
func AssignBatch(remaining decimal.NullDecimal, override *int, costs []decimal.Decimal) []int {
	out := make([]int, len(costs))
	running := decimal.Zero
	for i, c := range costs {
		out[i] = Assign(Input{RemainingCredits: remaining, Override: override, RunningCost: running})
		running = running.Add(c)
	}
	return out
}
