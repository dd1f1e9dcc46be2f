package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/config"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

var signingMethod = jwt.SigningMethodHS256

// Identity is the caller a verified token speaks for.
type Identity struct {
	UserID    uuid.UUID
	Role      enums.UserRole
	TokenID   string
	ExpiresAt time.Time
}

// claims is the token body. The user id travels in "sub".
type claims struct {
	Role enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks access tokens issued by the identity provider and can mint
// equivalent ones for local tooling and tests.
type Verifier struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	parser   *jwt.Parser
}

// NewVerifier validates cfg once so request handling never sees a bad setup.
func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	switch {
	case cfg.Secret == "":
		return nil, errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return nil, errors.New("jwt issuer is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(max(cfg.Leeway, 0)),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{
		key:      []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      time.Duration(cfg.ExpirationMinutes) * time.Minute,
		parser:   jwt.NewParser(opts...),
	}, nil
}

// Verify checks the signature and registered claims of token and returns the
// caller it identifies.
func (v *Verifier) Verify(token string) (Identity, error) {
	var c claims
	if _, err := v.parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.key, nil
	}); err != nil {
		return Identity{}, err
	}

	userID, err := uuid.Parse(c.Subject)
	if err != nil || userID == uuid.Nil {
		return Identity{}, fmt.Errorf("subject %q is not a user id", c.Subject)
	}
	if !c.Role.IsValid() {
		return Identity{}, fmt.Errorf("token carries invalid role %q", c.Role)
	}
	return Identity{
		UserID:    userID,
		Role:      c.Role,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// Mint signs a token for id valid from now for the configured lifetime. A
// blank TokenID gets a random one.
func (v *Verifier) Mint(id Identity, now time.Time) (string, error) {
	if v.ttl <= 0 {
		return "", errors.New("jwt expiration minutes must be positive")
	}
	if id.UserID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	if !id.Role.IsValid() {
		return "", fmt.Errorf("invalid user role %q", id.Role)
	}
	tokenID := strings.TrimSpace(id.TokenID)
	if tokenID == "" {
		tokenID = uuid.NewString()
	}

	body := claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
			ID:        tokenID,
		},
	}
	if v.audience != "" {
		body.Audience = jwt.ClaimStrings{v.audience}
	}
	signed, err := jwt.NewWithClaims(signingMethod, body).SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}
