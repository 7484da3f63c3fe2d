package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"echograph/internal/config"
)

var (
	ErrMissingToken = errors.New("authentication token is required")
	ErrInvalidToken = errors.New("invalid authentication token")
)

// Claims are the identity-provider claims we care about. Role defaults to
// viewer when the provider sends nothing.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates RS256 bearer tokens issued by the identity provider.
// The service never issues tokens itself.
type Verifier struct {
	publicKey *rsa.PublicKey
	issuer    string
	audience  string
}

func NewVerifier(cfg *config.Config) (*Verifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.OIDCPublicKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OIDC public key: %w", err)
	}
	return &Verifier{
		publicKey: key,
		issuer:    cfg.OIDCIssuer,
		audience:  cfg.OIDCAudience,
	}, nil
}

// Verify parses and validates a bearer token and returns its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.Role == "" {
		claims.Role = "viewer"
	}
	return claims, nil
}

// ExtractBearer pulls the token out of an Authorization header.
func ExtractBearer(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
