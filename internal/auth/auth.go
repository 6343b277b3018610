// Package auth is the authentication collaborator: it verifies HS256 bearer
// tokens and resolves them into an Identity carrying the actor, the tenant and
// the roles the allocation engine trusts.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultIssuer = "allot"

// Claims represents JWT claims used across the service.
type Claims struct {
	Tenant string   `json:"tenant,omitempty"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Signer issues and verifies tokens with one shared secret.
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSigner builds a Signer. An empty secret is a configuration error.
func NewSigner(secret, issuer string) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &Signer{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// GenerateToken signs a JWT for the given user, tenant and roles using HS256.
func (s *Signer) GenerateToken(userID, tenantID string, roles []string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("userID is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}

	now := s.now().UTC()
	claims := Claims{
		Tenant: strings.TrimSpace(tenantID),
		Roles:  dedupeRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAndValidate verifies the token signature and required claims.
func (s *Signer) ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := s.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	claims.Tenant = strings.TrimSpace(claims.Tenant)
	claims.Roles = dedupeRoles(claims.Roles)
	return claims, nil
}

// Identity resolves a token into the pair handed to the engine. A valid token
// without a tenant claim yields ErrMissingTenant.
func (s *Signer) Identity(token string) (Identity, error) {
	claims, err := s.ParseAndValidate(token)
	if err != nil {
		return Identity{}, err
	}
	if claims.Tenant == "" {
		return Identity{}, ErrMissingTenant
	}
	return Identity{UserID: claims.Subject, TenantID: claims.Tenant, Roles: claims.Roles}, nil
}

func (s *Signer) validateClaims(claims *Claims) error {
	if claims.Issuer != s.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := s.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return errors.New("token not yet valid")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}

func dedupeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var normalized []string
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
