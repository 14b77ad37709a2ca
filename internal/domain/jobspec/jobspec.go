// Package jobspec loads the job-type catalogue: for each job type, its parameter schema and
// defaults, its cost rule, and the ordered validators it must pass.
package jobspec

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/target/sarbatch/internal/domain/cost"
	"github.com/target/sarbatch/internal/domain/model"
	"github.com/target/sarbatch/internal/domain/validation"
	"gopkg.in/yaml.v3"
)

//go:embed job_specs.yml
var defaultSpecs []byte

// Spec describes one job type.
type Spec struct {
	Description string               `yaml:"description" json:"description,omitempty"`
	Parameters  map[string]Parameter `yaml:"parameters"  json:"parameters"`
	Cost        cost.Rule            `yaml:"cost"        json:"cost"`
	Validators  []validation.Kind    `yaml:"validators"  json:"validators"`
}

// Defaults returns the default value of every parameter that declares one.
func (s Spec) Defaults() map[string]any {
	out := make(map[string]any)
	for name, p := range s.Parameters {
		if p.Default != nil {
			out[name] = p.Default
		}
	}
	return out
}

// Catalogue is the validated set of job types a deployment accepts.
type Catalogue struct {
	specs map[model.JobType]Spec
}

// Default returns the catalogue embedded in the binary.
func Default() (*Catalogue, error) {
	return Parse(defaultSpecs)
}

// Load reads the catalogue at path, or the embedded default when path is empty.
func Load(path string) (*Catalogue, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job specs %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML catalogue.
func Parse(raw []byte) (*Catalogue, error) {
	var specs map[model.JobType]Spec
	if err := yaml.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("decode job specs: %w", err)
	}
	c := &Catalogue{specs: specs}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports every problem in the catalogue at once.
func (c *Catalogue) Validate() error {
	var result *multierror.Error
	if len(c.specs) == 0 {
		result = multierror.Append(result, errors.New("no job types defined"))
	}
	if err := c.Costs().Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	for _, jt := range c.JobTypes() {
		spec := c.specs[jt]
		seen := make(map[validation.Kind]bool, len(spec.Validators))
		for _, k := range spec.Validators {
			if seen[k] {
				result = multierror.Append(result, fmt.Errorf("job type %s lists validator %s twice", jt, k))
			}
			seen[k] = true
		}
		if !hasGranuleParameter(spec) {
			result = multierror.Append(result, fmt.Errorf("job type %s declares no granule parameter", jt))
		}
		for _, name := range sortedNames(spec.Parameters) {
			if err := spec.Parameters[name].validateSchema(); err != nil {
				result = multierror.Append(result, fmt.Errorf("job type %s parameter %s: %w", jt, name, err))
			}
		}
	}
	return result.ErrorOrNil()
}

// Lookup returns the spec for jobType.
func (c *Catalogue) Lookup(jobType model.JobType) (Spec, bool) {
	s, ok := c.specs[jobType]
	return s, ok
}

// JobTypes returns the job types in sorted order.
func (c *Catalogue) JobTypes() []model.JobType {
	out := make([]model.JobType, 0, len(c.specs))
	for jt := range c.specs {
		out = append(out, jt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Costs returns the cost table keyed by job type.
func (c *Catalogue) Costs() cost.Table {
	t := make(cost.Table, len(c.specs))
	for jt, s := range c.specs {
		t[jt] = s.Cost
	}
	return t
}

// Chains resolves every job type's validator list against reg.
func (c *Catalogue) Chains(reg *validation.Registry) (map[model.JobType]validation.Chain, error) {
	out := make(map[model.JobType]validation.Chain, len(c.specs))
	for jt, s := range c.specs {
		chain, err := reg.Chain(s.Validators)
		if err != nil {
			return nil, fmt.Errorf("job type %s: %w", jt, err)
		}
		out[jt] = chain
	}
	return out, nil
}

// Prepare checks req against its job type's schema and returns its parameters merged with
// the job type's defaults. Caller-supplied values win.
func (c *Catalogue) Prepare(req model.JobRequest) (map[string]any, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	spec, ok := c.specs[req.JobType]
	if !ok {
		return nil, model.NewValidationErrorf("Unknown job type %s", req.JobType)
	}

	for _, name := range sortedNames(req.JobParameters) {
		p, known := spec.Parameters[name]
		if !known {
			return nil, model.NewValidationErrorf("Unknown parameter %s for job type %s", name, req.JobType)
		}
		if err := p.check(req.JobParameters[name]); err != nil {
			return nil, model.NewValidationErrorf("Invalid %s for job type %s: %v", name, req.JobType, err)
		}
	}

	merged := spec.Defaults()
	for k, v := range req.JobParameters {
		merged[k] = v
	}
	for _, name := range sortedNames(spec.Parameters) {
		if _, present := merged[name]; !present && spec.Parameters[name].Required {
			return nil, model.NewValidationErrorf("Missing required parameter %s for job type %s", name, req.JobType)
		}
	}
	return merged, nil
}

// Specs returns a copy of every spec keyed by job type.
func (c *Catalogue) Specs() map[model.JobType]Spec {
	out := make(map[model.JobType]Spec, len(c.specs))
	for jt, s := range c.specs {
		out[jt] = s
	}
	return out
}

func hasGranuleParameter(s Spec) bool {
	for _, name := range validation.GranuleParameters {
		if p, ok := s.Parameters[name]; ok && p.Type == TypeStringList {
			return true
		}
	}
	return false
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
