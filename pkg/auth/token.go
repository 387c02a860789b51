package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/partnerledger-backend/pkg/config"
)

var (
	signingMethod = jwt.SigningMethodHS256

	errNoSecret = errors.New("jwt secret is required")
)

// MintAccessToken signs an HS256 token with the current secret. Login lives
// in the identity service; this serves internal callers and local tooling.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errNoSecret
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case payload.UserID == uuid.Nil:
		return "", errors.New("user id is required")
	case !payload.Role.IsValid():
		return "", fmt.Errorf("invalid actor role %q", payload.Role)
	}

	id := strings.TrimSpace(payload.JTI)
	if id == "" {
		id = uuid.NewString()
	}
	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	token := jwt.NewWithClaims(signingMethod, AccessTokenClaims{
		UserID: payload.UserID,
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies the token against the current secret and, while
// a rotation is in progress, the previous one.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errNoSecret
	}
	secrets := verificationSecrets(cfg)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	)

	var lastErr error
	for _, secret := range secrets {
		claims := &AccessTokenClaims{}
		_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := claims.validate(); err != nil {
			return nil, err
		}
		return claims, nil
	}
	return nil, lastErr
}

func verificationSecrets(cfg config.JWTConfig) [][]byte {
	var out [][]byte
	for _, s := range []string{cfg.Secret, cfg.PreviousSecret} {
		if s != "" {
			out = append(out, []byte(s))
		}
	}
	return out
}

func (c *AccessTokenClaims) validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("token missing user_id")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("token carries unknown role %q", c.Role)
	}
	return nil
}
