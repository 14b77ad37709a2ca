package jobspec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ParamType is the declared type of a job parameter.
type ParamType string

const (
	TypeString     ParamType = "string"
	TypeNumber     ParamType = "number"
	TypeInteger    ParamType = "integer"
	TypeBoolean    ParamType = "boolean"
	TypeStringList ParamType = "string_list"
	TypeNumberList ParamType = "number_list"
)

// Parameter is the schema of one job parameter.
type Parameter struct {
	Type        ParamType `yaml:"type"                  json:"type"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool      `yaml:"required,omitempty"    json:"required,omitempty"`
	Default     any       `yaml:"default,omitempty"     json:"default,omitempty"`
	Enum        []any     `yaml:"enum,omitempty"        json:"enum,omitempty"`
	Minimum     *float64  `yaml:"minimum,omitempty"     json:"minimum,omitempty"`
	Maximum     *float64  `yaml:"maximum,omitempty"     json:"maximum,omitempty"`
	MinItems    int       `yaml:"min_items,omitempty"   json:"min_items,omitempty"`
	MaxItems    int       `yaml:"max_items,omitempty"   json:"max_items,omitempty"`
}

func (p Parameter) validateSchema() error {
	switch p.Type {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeStringList, TypeNumberList:
	default:
		return fmt.Errorf("unknown type %q", p.Type)
	}
	if p.Required && p.Default != nil {
		return errors.New("required parameters cannot declare a default")
	}
	if p.MaxItems > 0 && p.MinItems > p.MaxItems {
		return fmt.Errorf("min_items %d exceeds max_items %d", p.MinItems, p.MaxItems)
	}
	for _, e := range p.Enum {
		if err := p.checkType(e); err != nil {
			return fmt.Errorf("enum value %v: %w", e, err)
		}
	}
	if p.Default != nil {
		if err := p.check(p.Default); err != nil {
			return fmt.Errorf("default: %w", err)
		}
	}
	return nil
}

// check validates a caller-supplied value.
func (p Parameter) check(v any) error {
	if err := p.checkType(v); err != nil {
		return err
	}
	if len(p.Enum) > 0 && !p.inEnum(v) {
		return fmt.Errorf("%v is not one of %v", v, p.Enum)
	}
	if n, ok := toDecimal(v); ok {
		if p.Minimum != nil && n.LessThan(decimal.NewFromFloat(*p.Minimum)) {
			return fmt.Errorf("%v is less than the minimum of %v", v, *p.Minimum)
		}
		if p.Maximum != nil && n.GreaterThan(decimal.NewFromFloat(*p.Maximum)) {
			return fmt.Errorf("%v is greater than the maximum of %v", v, *p.Maximum)
		}
	}
	if n, isList := listLen(v); isList {
		if n < p.MinItems {
			return fmt.Errorf("expected at least %d items, got %d", p.MinItems, n)
		}
		if p.MaxItems > 0 && n > p.MaxItems {
			return fmt.Errorf("expected at most %d items, got %d", p.MaxItems, n)
		}
	}
	return nil
}

func (p Parameter) checkType(v any) error {
	ok := false
	switch p.Type {
	case TypeString:
		_, ok = v.(string)
	case TypeNumber:
		_, ok = toDecimal(v)
	case TypeInteger:
		n, isNum := toDecimal(v)
		ok = isNum && n.IsInteger()
	case TypeBoolean:
		_, ok = v.(bool)
	case TypeStringList:
		ok = eachItem(v, func(item any) bool { _, s := item.(string); return s })
	case TypeNumberList:
		ok = eachItem(v, func(item any) bool { _, n := toDecimal(item); return n })
	}
	if !ok {
		return fmt.Errorf("expected %s, got %T", p.Type, v)
	}
	return nil
}

func (p Parameter) inEnum(v any) bool {
	for _, e := range p.Enum {
		if sameValue(e, v) {
			return true
		}
	}
	return false
}

func sameValue(a, b any) bool {
	da, aNum := toDecimal(a)
	db, bNum := toDecimal(b)
	if aNum && bNum {
		return da.Equal(db)
	}
	return a == b
}

func toDecimal(v any) (decimal.Decimal, bool) {
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
	default:
		return decimal.Zero, false
	}
}

func eachItem(v any, ok func(any) bool) bool {
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			if !ok(item) {
				return false
			}
		}
		return true
	case []string:
		for _, item := range list {
			if !ok(item) {
				return false
			}
		}
		return true
	case []float64:
		for _, item := range list {
			if !ok(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func listLen(v any) (int, bool) {
	switch list := v.(type) {
	case []any:
		return len(list), true
	case []string:
		return len(list), true
	case []float64:
		return len(list), true
	default:
		return 0, false
	}
}
