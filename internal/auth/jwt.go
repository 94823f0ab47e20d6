package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/vibefunder/billing/internal/config"
	ierr "github.com/vibefunder/billing/internal/errors"
)

// Claims is what a verified API token carries.
type Claims struct {
	UserID string
}

// Provider verifies the bearer tokens presented to the API. Tokens are issued
// elsewhere and signed with the shared HS256 secret.
type Provider struct {
	secret []byte
	issuer string
}

func NewProvider(cfg *config.Configuration) *Provider {
	return &Provider{
		secret: []byte(cfg.Auth.Secret),
		issuer: cfg.Auth.Issuer,
	}
}

// ValidateToken parses token and returns its claims.
func (p *Provider) ValidateToken(token string) (*Claims, error) {
	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ierr.NewError("unexpected signing method").
				WithHintf("Unexpected signing method: %v", token.Header["alg"]).
				Mark(ierr.ErrPermissionDenied)
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Token is invalid or expired").
			Mark(ierr.ErrPermissionDenied)
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok || !parsedToken.Valid {
		return nil, ierr.NewError("invalid token claims").
			WithHint("Invalid token claims").
			Mark(ierr.ErrPermissionDenied)
	}

	if p.issuer != "" && !claims.VerifyIssuer(p.issuer, true) {
		return nil, ierr.NewError("token issuer mismatch").
			WithHint("Token was not issued for this service").
			Mark(ierr.ErrPermissionDenied)
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		userID, _ = claims["user_id"].(string)
	}
	if userID == "" {
		return nil, ierr.NewError("token missing user ID").
			WithHint("Token missing user ID").
			Mark(ierr.ErrPermissionDenied)
	}

	return &Claims{UserID: userID}, nil
}

// GenerateToken signs a token for userID valid for ttl. Used by operators and tests.
func (p *Provider) GenerateToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
	}
	if p.issuer != "" {
		claims["iss"] = p.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}
