package cost

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes a rule, keeping its declared key set for the shape guard.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: cost rule must be a mapping", node.Line)
	}
	decoded, _, err := decodeRule(node, false)
	if err != nil {
		return err
	}
	*r = decoded
	return nil
}

// UnmarshalYAML decodes a cost table entry.
func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: cost table entry must be a mapping", node.Line)
	}
	rule, value, err := decodeRule(node, true)
	if err != nil {
		return err
	}
	e.Rule = rule
	e.ParameterValue = value
	return nil
}

func decodeRule(node *yaml.Node, isEntry bool) (Rule, any, error) {
	var (
		rule  Rule
		value any
	)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch key {
		case keyParameterValue:
			if !isEntry {
				rule.keys = append(rule.keys, key)
				continue
			}
			if err := val.Decode(&value); err != nil {
				return Rule{}, nil, fmt.Errorf("line %d: decode parameter_value: %w", val.Line, err)
			}
			continue
		case keyCost:
			d, err := decimal.NewFromString(val.Value)
			if err != nil {
				return Rule{}, nil, fmt.Errorf("line %d: invalid cost %q: %w", val.Line, val.Value, err)
			}
			rule.Cost = &d
		case keyCostParameter:
			rule.CostParameter = val.Value
		case keyCostTable:
			if err := val.Decode(&rule.CostTable); err != nil {
				return Rule{}, nil, err
			}
			if rule.CostTable == nil {
				rule.CostTable = []Entry{}
			}
		}
		rule.keys = append(rule.keys, key)
	}
	return rule, value, nil
}

// MarshalJSON renders the rule in the same shape it is configured with.
func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.asMap())
}

// MarshalJSON renders the entry with its parameter_value.
func (e Entry) MarshalJSON() ([]byte, error) {
	m := e.Rule.asMap()
	m[keyParameterValue] = e.ParameterValue
	return json.Marshal(m)
}

func (r Rule) asMap() map[string]any {
	m := map[string]any{}
	if r.Cost != nil {
		m[keyCost] = json.RawMessage(r.Cost.String())
	}
	if r.CostParameter != "" {
		m[keyCostParameter] = r.CostParameter
	}
	if r.CostTable != nil {
		m[keyCostTable] = r.CostTable
	}
	return m
}
