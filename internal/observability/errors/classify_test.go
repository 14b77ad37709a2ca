package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/target/sarbatch/internal/domain/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", model.NewValidationError("bad"), "validation"},
		{"wrapped validation", fmt.Errorf("admit: %w", model.NewValidationError("bad")), "validation"},
		{
			"insufficient credits",
			&model.InsufficientCreditsError{Total: decimal.NewFromInt(5), Remaining: decimal.NewFromInt(1)},
			"insufficient_credits",
		},
		{
			"application pending",
			&model.ApplicationStatusError{UserID: "u", Reason: model.ErrApplicationPending},
			"application_pending",
		},
		{"catalog", fmt.Errorf("%w: timeout", model.ErrCatalogUnavailable), "catalog_unavailable"},
		{"inconsistent", fmt.Errorf("%w: boom", model.ErrInconsistentState), "inconsistent_state"},
		{"context", context.Canceled, "errors_errorstring"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
