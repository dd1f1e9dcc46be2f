package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/internal/donations"
	"github.com/foodbridge/foodbridge-backend/internal/livesync"
	"github.com/foodbridge/foodbridge-backend/internal/matches"
	"github.com/foodbridge/foodbridge-backend/internal/notifications"
	"github.com/foodbridge/foodbridge-backend/pkg/auth"
	"github.com/foodbridge/foodbridge-backend/pkg/config"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubDonations struct {
	donations.Service
}

func (stubDonations) ListAvailable(context.Context, donations.ListFilter) (*donations.ListResult, error) {
	return &donations.ListResult{Items: []models.Donation{}}, nil
}

type stubMatches struct {
	matches.Service
}

func (stubMatches) Claim(_ context.Context, input matches.ClaimInput) (*models.Match, error) {
	return &models.Match{ID: uuid.New(), DonationID: input.DonationID, RecipientID: input.ActorID, Status: enums.MatchStatusPending}, nil
}

type stubNotifications struct {
	notifications.Service
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "foodbridge-test", ExpirationMinutes: 5},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Output: io.Discard})
	return NewRouter(cfg, logg, Deps{
		DB:            stubPinger{},
		Donations:     stubDonations{},
		Matches:       stubMatches{},
		Notifications: stubNotifications{},
	})
}

func buildToken(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	verifier, err := auth.NewVerifier(cfg.JWT)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	token, err := verifier.Mint(auth.Identity{UserID: uuid.New(), Role: role}, time.Now())
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func do(router http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(testConfig())
	if resp := do(router, http.MethodGet, "/health/live", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("expected live 200 got %d", resp.Code)
	}
	if resp := do(router, http.MethodGet, "/health/ready", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("expected ready 200 got %d", resp.Code)
	}
	if resp := do(router, http.MethodGet, "/api/public/ping", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("expected public ping 200 got %d", resp.Code)
	}
}

func TestPrivateGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	resp := do(router, http.MethodGet, "/api/v1/donations", "", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestPrivateGroupSucceedsWithJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	resp := do(router, http.MethodGet, "/api/v1/donations", buildToken(t, cfg, enums.UserRoleVolunteer), "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestSessionRouteEchoesRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	resp := do(router, http.MethodGet, "/api/v1/me/session", buildToken(t, cfg, enums.UserRoleVolunteer), "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"role":"volunteer"`) {
		t.Fatalf("session body missing role: %s", resp.Body.String())
	}
}

func TestCreateDonationRequiresDonorRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	resp := do(router, http.MethodPost, "/api/v1/donations", buildToken(t, cfg, enums.UserRoleRecipient), `{}`)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for recipient got %d", resp.Code)
	}
}

func TestClaimRequiresRecipientRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	target := "/api/v1/donations/" + uuid.NewString() + "/claim"

	if resp := do(router, http.MethodPost, target, buildToken(t, cfg, enums.UserRoleVolunteer), ""); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for volunteer got %d", resp.Code)
	}
	if resp := do(router, http.MethodPost, target, buildToken(t, cfg, enums.UserRoleRecipient), ""); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for recipient got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestLiveFeedAcceptsQueryToken(t *testing.T) {
	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Output: io.Discard})
	router := NewRouter(cfg, logg, Deps{
		DB:   stubPinger{},
		Live: livesync.NewSocket(livesync.NewHub(4, nil), cfg.LiveSync, logg),
	})

	if resp := do(router, http.MethodGet, "/api/v1/live", "", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
	// authenticated but not a websocket handshake, so the upgrader rejects it
	resp := do(router, http.MethodGet, "/api/v1/live?token="+buildToken(t, cfg, enums.UserRoleDonor), "", "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 from upgrader got %d", resp.Code)
	}
}
