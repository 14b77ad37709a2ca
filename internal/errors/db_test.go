package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_Codes(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  ErrorCode
		wantField string
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeCanceled},
		{name: "no rows", err: fmt.Errorf("get job: %w", pgx.ErrNoRows), wantCode: ErrCodeNotFound},
		{
			name: "duplicate job id from detail",
			err: &pgconn.PgError{
				Code:      pgerrcode.UniqueViolation,
				TableName: "jobs",
				Detail:    "Key (job_id)=(5b1c) already exists.",
			},
			wantCode:  ErrCodeConflict,
			wantField: "job_id",
		},
		{
			name:      "missing user",
			err:       &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ColumnName: "user_id"},
			wantCode:  ErrCodeForeignKey,
			wantField: "user_id",
		},
		{
			name: "negative credits",
			err: &pgconn.PgError{
				Code:           pgerrcode.CheckViolation,
				TableName:      "users",
				ConstraintName: "users_remaining_credits_check",
			},
			wantCode:  ErrCodeValidation,
			wantField: "remaining_credits",
		},
		{
			name:      "not null",
			err:       &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "request_time"},
			wantCode:  ErrCodeValidation,
			wantField: "request_time",
		},
		{name: "serialization", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, wantCode: ErrCodeRetryable},
		{name: "deadlock", err: &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, wantCode: ErrCodeRetryable},
		{name: "other pg error", err: &pgconn.PgError{Code: pgerrcode.UndefinedTable}, wantCode: ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if got := GetCode(err); got != tt.wantCode {
				t.Fatalf("GetCode() = %q, want %q", got, tt.wantCode)
			}
			if got := GetField(err); got != tt.wantField {
				t.Errorf("GetField() = %q, want %q", got, tt.wantField)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("mapped error should wrap the original")
			}
		})
	}
}

func TestMapDBError_PassThrough(t *testing.T) {
	orig := errors.New("boom")
	if got := MapDBError(orig); got != orig {
		t.Errorf("MapDBError() = %v, want original error", got)
	}
	if GetCode(orig) != "" {
		t.Errorf("plain errors carry no code")
	}
}

func TestCheckField(t *testing.T) {
	tests := []struct {
		constraint, table, want string
	}{
		{"jobs_name_check", "jobs", "name"},
		{"jobs_credit_cost_check", "", "jobs_credit_cost"},
		{"custom_constraint", "jobs", ""},
		{"", "jobs", ""},
	}
	for _, tt := range tests {
		if got := checkField(tt.constraint, tt.table); got != tt.want {
			t.Errorf("checkField(%q, %q) = %q, want %q", tt.constraint, tt.table, got, tt.want)
		}
	}
}

func TestIsHelpers(t *testing.T) {
	wrapped := fmt.Errorf("commit: %w", Wrap(errors.New("x"), ErrCodeRetryable, "retry"))
	if !IsRetryable(wrapped) {
		t.Error("IsRetryable should see through wrapping")
	}
	if IsConflict(wrapped) || IsNotFound(wrapped) || IsValidation(wrapped) || IsForeignKey(wrapped) || IsTimeout(wrapped) {
		t.Error("unexpected code match")
	}
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if got := Internalf("bad %d", 1).Error(); got != "bad 1" {
		t.Errorf("Internalf() = %q", got)
	}
}
