package httpapi

import (
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"salonpos/backend/internal/domain"
)

const (
	RoleCashier = "cashier"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

var knownRoles = []string{RoleCashier, RoleManager, RoleAdmin}

// AuthManager verifies HS256 bearer tokens issued by the external auth
// system. Issue exists for tooling and tests.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	issuer   string
}

type salonClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{secret: []byte(secret), tokenTTL: tokenTTL, issuer: "salonpos"}
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &salonClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithExpirationRequired())
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	if !isRoleAllowed(claims.Role, knownRoles) {
		return domain.Actor{}, errors.New("unknown token role")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

// Issue signs a token for username with role, valid for the configured TTL.
func (a *AuthManager) Issue(username string, role string) (string, time.Time, error) {
	if strings.TrimSpace(username) == "" {
		return "", time.Time{}, errors.New("username is required")
	}
	if !isRoleAllowed(role, knownRoles) {
		return "", time.Time{}, errors.New("unknown role " + role)
	}
	now := time.Now().UTC()
	expiresAt := now.Add(a.tokenTTL)
	claims := salonClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    a.issuer,
		},
		Role: role,
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// CronGuard authenticates the batch trigger with a shared bearer secret. The
// secret is held only as a bcrypt hash and failed attempts are rate limited
// per client.
type CronGuard struct {
	hash    []byte
	limiter *attemptLimiter
}

// NewCronGuard accepts either a plain secret or an existing bcrypt hash.
func NewCronGuard(secret string) (*CronGuard, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("cron secret is empty")
	}
	hash := secret
	if !isPasswordHash(secret) {
		hashed, err := HashSecret(secret)
		if err != nil {
			return nil, err
		}
		hash = hashed
	}
	return &CronGuard{hash: []byte(hash), limiter: newAttemptLimiter(5, time.Minute)}, nil
}

func (g *CronGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if g.limiter.Exhausted(key) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many failed attempts"})
			return
		}
		if !g.valid(bearerToken(r)) {
			if !g.limiter.Allow(key) {
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many failed attempts"})
				return
			}
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid cron secret"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *CronGuard) valid(token string) bool {
	if token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(token)) == nil
}

// HashSecret returns the bcrypt hash stored in CRON_SECRET by deployments
// that do not want the plain secret in their environment.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

func bearerToken(r *http.Request) string {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(authorization) < len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authorization[len(prefix):])
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
	now     func() time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time), now: time.Now}
}

// Allow records an attempt for key and reports whether it is within the limit.
func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.pruneLocked(key, now)
	if len(kept) >= l.max {
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

// Exhausted reports whether key already used up its attempts, without
// recording a new one.
func (l *attemptLimiter) Exhausted(key string) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pruneLocked(key, l.now())) >= l.max
}

func (l *attemptLimiter) pruneLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.entries, key)
	} else {
		l.entries[key] = kept
	}
	return kept
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
