package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"ib_api/internal/modules/config"
)

var (
	ErrBadCredentials = errors.New("incorrect username or password")
	ErrInvalidToken   = errors.New("could not validate credentials")
)

// Auth checks the single configured user and issues/verifies HMAC-signed
// bearer tokens.
type Auth struct {
	secret   []byte
	method   jwt.SigningMethod
	ttl      time.Duration
	username string
	hash     []byte

	now func() time.Time
}

func NewAuth(cfg config.Auth) (*Auth, error) {
	method := jwt.GetSigningMethod(cfg.JWTAlgorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm %q", cfg.JWTAlgorithm)
	}
	return &Auth{
		secret:   []byte(cfg.JWTSecret),
		method:   method,
		ttl:      cfg.TokenTTL,
		username: cfg.Username,
		hash:     []byte(cfg.PasswordHash),
		now:      time.Now,
	}, nil
}

// Authenticate verifies the credentials against the configured user.
func (a *Auth) Authenticate(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	// always run bcrypt so a wrong username costs the same
	pwErr := bcrypt.CompareHashAndPassword(a.hash, []byte(password))
	if !userOK || pwErr != nil {
		return ErrBadCredentials
	}
	return nil
}

// Issue returns a signed token for subject and its lifetime in seconds.
func (a *Auth) Issue(subject string) (string, int, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	signed, err := jwt.NewWithClaims(a.method, claims).SignedString(a.secret)
	if err != nil {
		return "", 0, fmt.Errorf("sign token: %w", err)
	}
	return signed, int(a.ttl.Seconds()), nil
}

// Verify checks signature, algorithm and expiry and returns the subject.
func (a *Auth) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{a.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
