// Package errors classifies errors into short labels for metric tags.
package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/target/sarbatch/internal/domain/model"
)

// known maps admission and ledger conditions to stable labels. Order matters: the first
// match wins, so the more specific conditions come first.
var known = []struct {
	target error
	label  string
}{
	{model.ErrInconsistentState, "inconsistent_state"},
	{model.ErrInsufficientCredits, "insufficient_credits"},
	{model.ErrApplicationNotStarted, "application_not_started"},
	{model.ErrApplicationPending, "application_pending"},
	{model.ErrApplicationRejected, "application_rejected"},
	{model.ErrInvalidApplicationStatus, "invalid_application_status"},
	{model.ErrCatalogUnavailable, "catalog_unavailable"},
	{model.ErrCostConfig, "cost_config"},
	{model.ErrValidation, "validation"},
	{model.ErrDatabaseCondition, "database_condition"},
}

// Classify returns a normalized error label suitable for tagging metrics and logs. Domain
// conditions get their own label; anything else is named after its innermost concrete type.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range known {
		if goerrors.Is(err, k.target) {
			return k.label
		}
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
