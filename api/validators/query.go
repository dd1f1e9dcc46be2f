package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
)

// ParseQueryInt reads key as an integer in [min, max], returning fallback
// when the parameter is absent.
func ParseQueryInt(r *http.Request, key string, fallback, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Validation(key, key+" must be an integer")
	}
	if n < min || n > max {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be between %d and %d", key, min, max).
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return n, nil
}

// ParseQueryBool reads key as a boolean flag. Absent means false.
func ParseQueryBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, pkgerrors.Validation(key, key+" must be true or false")
	}
	return v, nil
}
