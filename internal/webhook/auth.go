package webhook

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/ascend/internal/config"
)

const (
	adminKeyHeader = "X-Admin-Key"
	tokenIssuer    = "ascend-admin"
)

var (
	// ErrInvalidKey is returned when an operator key does not match.
	ErrInvalidKey = errors.New("invalid admin key")
	// ErrInvalidToken is returned for a malformed, expired or forged token.
	ErrInvalidToken = errors.New("invalid admin token")
)

// LockedOutError is returned by Login while an address is locked out.
type LockedOutError struct {
	Remaining time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("too many failed logins, retry in %s", e.Remaining.Round(time.Second))
}

// FailedLoginError is returned by Login for a wrong key before lockout.
type FailedLoginError struct {
	AttemptsLeft int
}

func (e *FailedLoginError) Error() string {
	return fmt.Sprintf("%v: %d attempts left", ErrInvalidKey, e.AttemptsLeft)
}

func (e *FailedLoginError) Unwrap() error { return ErrInvalidKey }

type loginAttempts struct {
	failures    int
	lockedUntil time.Time
}

// Authenticator checks operator credentials. It accepts the raw key, checked
// against a bcrypt hash, or an HS256 token issued by Login.
type Authenticator struct {
	cfg    config.AdminConfig
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	attempts map[string]*loginAttempts
}

// NewAuthenticator creates an Authenticator.
//
// Precondition: cfg.KeyHash is a bcrypt hash; cfg.TokenSecret is non-empty;
// logger must be non-nil.
func NewAuthenticator(cfg config.AdminConfig, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		attempts: make(map[string]*loginAttempts),
	}
}

// HashKey returns the bcrypt hash stored as admin.key_hash.
func HashKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing admin key: %w", err)
	}
	return string(h), nil
}

// CheckKey reports whether key matches the configured hash.
func (a *Authenticator) CheckKey(key string) bool {
	if key == "" || a.cfg.KeyHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.cfg.KeyHash), []byte(key)) == nil
}

// Login exchanges a key for a token. Failures are counted per address; the
// address is locked out for cfg.Lockout once cfg.MaxLoginAttempts is reached.
//
// Postcondition: On success returns a token and its expiry and clears the
// address's failure count. Otherwise returns *LockedOutError or *FailedLoginError.
func (a *Authenticator) Login(ip, key string) (string, time.Time, error) {
	now := a.now()
	a.mu.Lock()
	st := a.attempts[ip]
	if st != nil && now.Before(st.lockedUntil) {
		remaining := st.lockedUntil.Sub(now)
		a.mu.Unlock()
		return "", time.Time{}, &LockedOutError{Remaining: remaining}
	}
	a.mu.Unlock()

	if !a.CheckKey(key) {
		return "", time.Time{}, a.fail(ip, now)
	}

	a.mu.Lock()
	delete(a.attempts, ip)
	a.mu.Unlock()
	return a.IssueToken()
}

func (a *Authenticator) fail(ip string, now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.attempts[ip]
	if st == nil {
		st = &loginAttempts{}
		a.attempts[ip] = st
	}
	st.failures++
	if st.failures >= a.cfg.MaxLoginAttempts {
		st.failures = 0
		st.lockedUntil = now.Add(a.cfg.Lockout)
		a.logger.Warn("admin login locked out", zap.String("ip", ip), zap.Duration("lockout", a.cfg.Lockout))
		return &LockedOutError{Remaining: a.cfg.Lockout}
	}
	a.logger.Warn("admin login failed", zap.String("ip", ip), zap.Int("failures", st.failures))
	return &FailedLoginError{AttemptsLeft: a.cfg.MaxLoginAttempts - st.failures}
}

// EvictLockouts drops expired lockout records with no pending failures.
func (a *Authenticator) EvictLockouts() int {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for ip, st := range a.attempts {
		if st.failures == 0 && !now.Before(st.lockedUntil) {
			delete(a.attempts, ip)
			n++
		}
	}
	return n
}

// IssueToken signs a token valid for cfg.TokenTTL.
func (a *Authenticator) IssueToken() (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.cfg.TokenTTL)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.TokenSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing admin token: %w", err)
	}
	return signed, exp, nil
}

// VerifyToken validates signature, issuer and expiry.
func (a *Authenticator) VerifyToken(token string) error {
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return []byte(a.cfg.TokenSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

// Middleware admits requests carrying a valid key or bearer token.
func (a *Authenticator) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key := c.Get(adminKeyHeader); key != "" {
			if a.CheckKey(key) {
				return c.Next()
			}
			return c.Status(fiber.StatusForbidden).JSON(errorBody{Error: "unauthorized"})
		}
		if token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "); ok {
			if err := a.VerifyToken(token); err == nil {
				return c.Next()
			}
			return c.Status(fiber.StatusUnauthorized).JSON(errorBody{Error: "invalid token"})
		}
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody{Error: "admin credentials required"})
	}
}
