package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kiddoquest/internal/models"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carry a family-scoped identity
type Claims struct {
	FamilyID string `json:"family_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier issues and verifies HS256 identity tokens
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier creates a verifier for tokens signed with secret
func NewTokenVerifier(secret, issuer string) (*TokenVerifier, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("jwt secret must be at least 16 bytes")
	}
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}, nil
}

// Issue signs a token for identity valid for ttl
func (v *TokenVerifier) Issue(identity models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		FamilyID: identity.FamilyID,
		Role:     identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns its identity
func (v *TokenVerifier) Verify(token string) (models.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &Claims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	identity := models.Identity{UserID: claims.Subject, FamilyID: claims.FamilyID, Role: claims.Role}
	switch identity.Role {
	case models.RoleAdmin, models.RoleParent, models.RoleChild:
		if identity.FamilyID == "" {
			return models.Identity{}, fmt.Errorf("%w: family_id is required", ErrInvalidToken)
		}
	case models.RoleSystem:
	default:
		return models.Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, identity.Role)
	}
	return identity, nil
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, error) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
