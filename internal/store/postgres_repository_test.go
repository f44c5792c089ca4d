package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{
			name: "unique violation without constraint filter",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "deposit_transactions_trans_id_key"},
			want: true,
		},
		{
			name:       "unique violation on matching constraint",
			err:        &pgconn.PgError{Code: "23505", ConstraintName: "deposit_transactions_trans_id_key"},
			constraint: "deposit_transactions_trans_id_key",
			want:       true,
		},
		{
			name:       "unique violation on different constraint",
			err:        &pgconn.PgError{Code: "23505", ConstraintName: "virtual_accounts_order_ref_key"},
			constraint: "deposit_transactions_trans_id_key",
			want:       false,
		},
		{
			name: "different pg error code",
			err:  &pgconn.PgError{Code: "23503"},
			want: false,
		},
		{
			name: "wrapped unique violation",
			err:  fmt.Errorf("insert deposit: %w", &pgconn.PgError{Code: "23505"}),
			want: true,
		},
		{
			name: "non-pg error",
			err:  errors.New("connection refused"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("isUniqueViolation = %t, want %t", got, tc.want)
			}
		})
	}
}

func TestClampPage(t *testing.T) {
	testCases := []struct {
		name                  string
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{"defaults applied", 0, 0, 20, 0},
		{"negative values normalized", -5, -10, 20, 0},
		{"within bounds unchanged", 50, 40, 50, 40},
		{"limit capped", 1000, 0, 100, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			limit, offset := clampPage(tc.limit, tc.offset)
			if limit != tc.wantLimit || offset != tc.wantOffset {
				t.Fatalf("clampPage(%d, %d) = (%d, %d), want (%d, %d)",
					tc.limit, tc.offset, limit, offset, tc.wantLimit, tc.wantOffset)
			}
		})
	}
}
