package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeForbidden, status: http.StatusForbidden},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeConflict, status: http.StatusConflict, detailsOK: true},
		{code: CodeInvalidTransition, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeStoreUnavailable, status: http.StatusServiceUnavailable, retryable: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			meta := MetadataFor(tt.code)
			assert.Equal(t, tt.status, meta.HTTPStatus)
			assert.Equal(t, tt.retryable, meta.Retryable)
			assert.Equal(t, tt.detailsOK, meta.DetailsAllowed)
			assert.NotEmpty(t, meta.PublicMessage)
		})
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	assert.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeStoreUnavailable, cause, "claim donation")

	require.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeStoreUnavailable, wrapped.Code())
	assert.True(t, wrapped.Retryable())
	assert.Contains(t, wrapped.Error(), "boom")
}

func TestInvalidTransitionDetails(t *testing.T) {
	err := InvalidTransition("pending", "completed", "volunteer")

	assert.Equal(t, CodeInvalidTransition, err.Code())
	assert.Equal(t, map[string]any{"from": "pending", "to": "completed", "role": "volunteer"}, err.Details())
}

func TestIsCodeFollowsChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeConflict, "donation already claimed"))

	assert.True(t, IsCode(err, CodeConflict))
	assert.False(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(nil, CodeConflict))
	assert.Nil(t, As(nil))
}

func TestDumpFlattensChainAndPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint",
		TableName:      "donation_matches",
		ConstraintName: "ux_donation_matches_active",
	}
	err := Wrap(CodeConflict, fmt.Errorf("insert match: %w", pgErr), "donation already claimed")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("code = %s", d.Code)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %v", d.Chain)
	}
	if d.PGCode != "23505" || d.PGConstraint != "ux_donation_matches_active" || d.PGTable != "donation_matches" {
		t.Fatalf("postgres details not copied: %+v", d)
	}

	if got := Dump(nil); got.TopMessage != "" || got.Chain != nil {
		t.Fatalf("expected empty dump for nil, got %+v", got)
	}
}

func TestDumpFieldsOmitEmptyValues(t *testing.T) {
	fields := Dump(New(CodeNotFound, "donation not found")).Fields()
	assert.Equal(t, map[string]any{"error": "NOT_FOUND: donation not found", "error_code": "NOT_FOUND"}, fields)

	pg := &pgconn.PgError{Code: "23505", ConstraintName: "donation_matches_active_uniq"}
	fields = Dump(Wrap(CodeConflict, pg, "claim donation")).Fields()
	assert.Equal(t, "23505", fields["pg_code"])
	assert.Equal(t, "donation_matches_active_uniq", fields["pg_constraint"])
	assert.NotContains(t, fields, "pg_table")
	assert.Len(t, fields["error_chain"], 2)
}

func TestConflictCarriesKind(t *testing.T) {
	err := Conflict("race_lost", "match changed").With("status", "confirmed")

	assert.Equal(t, CodeConflict, err.Code())
	assert.Equal(t, map[string]any{"kind": "race_lost", "status": "confirmed"}, err.Details())
	assert.True(t, IsCode(fmt.Errorf("claim: %w", err), CodeConflict))
}

func TestNotFoundNamesResource(t *testing.T) {
	err := NotFound("match")
	assert.Equal(t, "match not found", err.Message())
	assert.Nil(t, err.Details())
	assert.False(t, IsCode(nil, CodeNotFound))
}

func TestWithOnNilAndForeignDetails(t *testing.T) {
	var nilErr *Error
	assert.Nil(t, nilErr.With("k", "v"))

	err := New(CodeValidation, "bad").WithDetails("opaque").With("field", "title")
	assert.Equal(t, map[string]any{"field": "title"}, err.Details())
}
