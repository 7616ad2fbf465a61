package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	subjectAccess  = "access"
	subjectRefresh = "refresh"
)

// Claims carries the user id through both token kinds; Subject says which kind.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Pair is what login, register and refresh hand back to clients.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenConfig holds the signing secrets and lifetimes.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Tokens issues and parses HS256 access and refresh tokens.
type Tokens struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokens validates config and returns an issuer.
func NewTokens(config TokenConfig) (*Tokens, error) {
	if config.AccessSecret == "" || config.RefreshSecret == "" {
		return nil, errors.New("token secrets cannot be empty")
	}
	if config.AccessTTL <= 0 || config.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &Tokens{config: config, now: time.Now}, nil
}

// GeneratePair signs a fresh access and refresh token for the user.
func (t *Tokens) GeneratePair(userID int64, username string) (*Pair, error) {
	now := t.now()

	access, err := t.sign(userID, username, subjectAccess, now, t.config.AccessTTL, t.config.AccessSecret)
	if err != nil {
		return nil, err
	}
	refresh, err := t.sign(userID, username, subjectRefresh, now, t.config.RefreshTTL, t.config.RefreshSecret)
	if err != nil {
		return nil, err
	}
	return &Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (t *Tokens) sign(userID int64, username, subject string, now time.Time, ttl time.Duration, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.config.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", subject, err)
	}
	return signed, nil
}

// ParseAccess validates an access token.
func (t *Tokens) ParseAccess(tokenStr string) (*Claims, error) {
	claims, err := t.parse(tokenStr, t.config.AccessSecret, subjectAccess)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ParseRefresh validates a refresh token.
func (t *Tokens) ParseRefresh(tokenStr string) (*Claims, error) {
	claims, err := t.parse(tokenStr, t.config.RefreshSecret, subjectRefresh)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrRefreshExpired
	case err != nil:
		return nil, ErrRefreshInvalid
	}
	return claims, nil
}

func (t *Tokens) parse(tokenStr, secret, subject string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(subject),
		jwt.WithIssuer(t.config.Issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
