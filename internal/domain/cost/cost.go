// Package cost evaluates the declarative per-job-type cost tables that price jobs in credits.
//
// A rule is either a flat cost:
//
//	cost: 5
//
// or a parameterized table, whose entries are themselves flat costs or nested tables:
//
//	cost_parameter: resolution
//	cost_table:
//	  - parameter_value: 30
//	    cost: 5
//	  - parameter_value: 10
//	    cost_parameter: apply_water_mask
//	    cost_table:
//	      - {parameter_value: true, cost: 70}
//	      - {parameter_value: false, cost: 60}
//
// A cost_parameter of the form "length::X" matches on the number of elements in the
// list-valued parameter X.
package cost

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
	"github.com/target/sarbatch/internal/domain/model"
)

const (
	keyCost           = "cost"
	keyCostParameter  = "cost_parameter"
	keyCostTable      = "cost_table"
	keyParameterValue = "parameter_value"

	lengthPrefix = "length::"
)

// Rule prices a job either with a flat Cost or by looking up CostParameter in CostTable.
type Rule struct {
	Cost          *decimal.Decimal
	CostParameter string
	CostTable     []Entry

	// keys records the keys the rule was declared with so malformed rules fail fast.
	keys []string
}

// Entry is one row of a cost table. The embedded Rule is either flat or a nested table.
type Entry struct {
	ParameterValue any
	Rule
}

// Table maps job types to their cost rule.
type Table map[model.JobType]Rule

// Flat returns a flat cost rule.
func Flat(c decimal.Decimal) Rule {
	return Rule{Cost: &c, keys: []string{keyCost}}
}

// Parameterized returns a rule that looks up parameter in entries.
func Parameterized(parameter string, entries ...Entry) Rule {
	return Rule{CostParameter: parameter, CostTable: entries, keys: []string{keyCostParameter, keyCostTable}}
}

// Match returns an entry that applies rule when the looked-up parameter equals value.
func Match(value any, rule Rule) Entry {
	return Entry{ParameterValue: value, Rule: rule}
}

// Compute returns the credit cost of a job whose parameters have already been merged with defaults.
func (t Table) Compute(jobType model.JobType, params map[string]any) (decimal.Decimal, error) {
	rule, ok := t[jobType]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: cost not found for job type %s", model.ErrCostConfig, jobType)
	}
	return rule.evaluate(jobType, params)
}

func (r Rule) evaluate(jobType model.JobType, params map[string]any) (decimal.Decimal, error) {
	if err := r.checkShape(jobType); err != nil {
		return decimal.Zero, err
	}
	if r.Cost != nil {
		return *r.Cost, nil
	}

	value, found := lookupParameter(params, r.CostParameter)
	if found {
		for _, entry := range r.CostTable {
			if valuesEqual(entry.ParameterValue, value) {
				return entry.Rule.evaluate(jobType, params)
			}
		}
	}
	return decimal.Zero, fmt.Errorf(
		"%w: cost not found for job type %s with %s == %v",
		model.ErrCostConfig, jobType, r.CostParameter, value,
	)
}

// checkShape enforces that a rule is exactly {cost} or {cost_parameter, cost_table}.
func (r Rule) checkShape(jobType model.JobType) error {
	keys := r.keys
	if keys == nil {
		keys = r.impliedKeys()
	}
	switch strings.Join(sortedCopy(keys), ",") {
	case keyCost:
		if r.Cost == nil {
			return fmt.Errorf("%w: cost rule for job type %s has no cost value", model.ErrCostConfig, jobType)
		}
		return nil
	case keyCostParameter + "," + keyCostTable:
		if r.CostParameter == "" {
			return fmt.Errorf("%w: cost rule for job type %s has an empty cost_parameter", model.ErrCostConfig, jobType)
		}
		return nil
	default:
		return fmt.Errorf(
			"%w: cost definition for job type %s has invalid keys: %v",
			model.ErrCostConfig, jobType, keys,
		)
	}
}

func (r Rule) impliedKeys() []string {
	var keys []string
	if r.Cost != nil {
		keys = append(keys, keyCost)
	}
	if r.CostParameter != "" {
		keys = append(keys, keyCostParameter)
	}
	if r.CostTable != nil {
		keys = append(keys, keyCostTable)
	}
	return keys
}

// Validate walks every rule and reports all malformed rules at once.
func (t Table) Validate() error {
	var result *multierror.Error
	for _, jobType := range t.JobTypes() {
		if err := t[jobType].validate(jobType); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (r Rule) validate(jobType model.JobType) error {
	if err := r.checkShape(jobType); err != nil {
		return err
	}
	if r.Cost != nil {
		if r.Cost.IsNegative() {
			return fmt.Errorf("%w: job type %s has a negative cost", model.ErrCostConfig, jobType)
		}
		return nil
	}
	if len(r.CostTable) == 0 {
		return fmt.Errorf("%w: job type %s has an empty cost_table", model.ErrCostConfig, jobType)
	}
	var errs error
	for _, entry := range r.CostTable {
		if entry.ParameterValue == nil {
			errs = errors.Join(errs, fmt.Errorf(
				"%w: job type %s has a %s entry without parameter_value",
				model.ErrCostConfig, jobType, r.CostParameter,
			))
			continue
		}
		if !isScalar(entry.ParameterValue) {
			errs = errors.Join(errs, fmt.Errorf(
				"%w: job type %s has a non-scalar %s parameter_value %v",
				model.ErrCostConfig, jobType, r.CostParameter, entry.ParameterValue,
			))
			continue
		}
		if err := entry.Rule.validate(jobType); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// JobTypes returns the priced job types in sorted order.
func (t Table) JobTypes() []model.JobType {
	out := make([]model.JobType, 0, len(t))
	for jt := range t {
		out = append(out, jt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// lookupParameter resolves a cost_parameter against the job parameters.
func lookupParameter(params map[string]any, parameter string) (any, bool) {
	if name, ok := strings.CutPrefix(parameter, lengthPrefix); ok {
		v, present := params[name]
		if !present {
			return nil, false
		}
		n, isList := listLength(v)
		if !isList {
			return nil, false
		}
		return n, true
	}
	v, present := params[parameter]
	return v, present
}

func listLength(v any) (int, bool) {
	switch l := v.(type) {
	case []any:
		return len(l), true
	case []string:
		return len(l), true
	case []float64:
		return len(l), true
	default:
		return 0, false
	}
}

// valuesEqual compares a cost table value with a job parameter value. Numbers compare by
// value so that a YAML integer matches a JSON float. Lists and maps never match.
func valuesEqual(tableValue, jobValue any) bool {
	a, aNum := asDecimal(tableValue)
	b, bNum := asDecimal(jobValue)
	if aNum || bNum {
		return aNum && bNum && a.Equal(b)
	}
	if !isScalar(tableValue) || !isScalar(jobValue) {
		return false
	}
	return tableValue == jobValue
}

// isScalar reports whether v is a string, bool or number.
func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := asDecimal(v)
	return ok
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case decimal.Decimal:
		return n, true
	default:
		return decimal.Zero, false
	}
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
