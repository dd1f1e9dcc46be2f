package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
)

type sampleBody struct {
	Title  string `json:"title" validate:"required"`
	Status string `json:"status" validate:"omitempty,oneof=confirmed completed"`
	Score  int    `json:"score" validate:"min=1,max=5"`
}

func TestDecodeJSONBodyUsesJSONFieldNames(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"lost","score":9}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["title"])
	assert.Equal(t, "must be one of [confirmed completed]", details["status"])
	assert.Equal(t, "must be at most 5", details["score"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"x","score":3,"extra":true}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

type windowBody struct {
	Title string    `json:"title" validate:"required,notblank"`
	Start time.Time `json:"pickup_time_start" validate:"required"`
	End   time.Time `json:"pickup_time_end" validate:"required,gtfield=Start"`
}

func TestDecodeJSONBodyNamesSiblingFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(
		`{"title":"   ","pickup_time_start":"2026-05-01T12:00:00Z","pickup_time_end":"2026-05-01T10:00:00Z"}`))
	var body windowBody
	err := DecodeJSONBody(req, &body)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must not be blank", details["title"])
	assert.Equal(t, "must be after pickup_time_start", details["pickup_time_end"])
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"wrong type":    `{"title":"x","score":"five"}`,
		"two objects":   `{"title":"x","score":3}{"title":"y","score":3}`,
		"oversized":     `{"title":"` + strings.Repeat("a", MaxBodyBytes) + `","score":3}`,
		"not an object": `[1,2]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var body sampleBody
			err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw)), &body)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	var body sampleBody
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"x","score":"five"}`)), &body)
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	assert.Equal(t, "must be a int", details["score"])
}

func TestParseQueryBool(t *testing.T) {
	v, err := ParseQueryBool(httptest.NewRequest(http.MethodGet, "/?queue=true", nil), "queue")
	require.NoError(t, err)
	assert.True(t, v)

	v, err = ParseQueryBool(httptest.NewRequest(http.MethodGet, "/", nil), "queue")
	require.NoError(t, err)
	assert.False(t, v)

	_, err = ParseQueryBool(httptest.NewRequest(http.MethodGet, "/?queue=maybe", nil), "queue")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Fresh bread", SanitizeString("  Fresh\x00 bread ", 0))
	assert.Equal(t, "Crème", SanitizeString("Crème brûlée", 5))
	assert.Equal(t, "line one\nline two", SanitizeString("line one\nline two", 0))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	_, err := ParseQueryInt(req, "limit", 20, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	v, err := ParseQueryInt(req, "limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, v)
}

func TestParsePathUUID(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("matchId", value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}

	got, err := ParsePathUUID(withParam(id.String()), "matchId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParsePathUUID(withParam("nope"), "matchId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParsePathUUID(withParam(""), "matchId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
