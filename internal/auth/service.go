package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"portal-api/internal/cache"
	"portal-api/internal/model"
	"portal-api/internal/store"
	"portal-api/internal/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)

// Claims is the JWT payload. The registered ID claim (jti) keys the
// server-side session row.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and verifies session tokens. A token is accepted only when
// both checks pass: the HS256 signature/expiry, and a live unrevoked session
// row for its jti. Logout revokes the session, so verification fails before
// the token's own expiry.
type Service struct {
	store   *store.Store
	revoked cache.RevocationCache
	secret  []byte
	ttl     time.Duration
	issuer  string
}

func NewService(st *store.Store, revoked cache.RevocationCache, secret string, ttl time.Duration) *Service {
	return &Service{
		store:   st,
		revoked: revoked,
		secret:  []byte(secret),
		ttl:     ttl,
		issuer:  "portal-api",
	}
}

// HashPassword produces a bcrypt hash at the seed cost factor.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Login validates credentials and issues a signed token backed by a session
// row. Credential failures are indistinguishable between unknown email,
// wrong password and inactive account.
func (s *Service) Login(ctx context.Context, email, password string) (string, model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", model.User{}, ErrInvalidCredentials
		}
		return "", model.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return "", model.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", model.User{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	jti := fmt.Sprintf("%d-%d", user.ID, now.UnixNano())
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    s.issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", model.User{}, fmt.Errorf("sign token: %w", err)
	}

	if err := s.store.CreateSession(ctx, user.ID, jti, expiresAt); err != nil {
		return "", model.User{}, fmt.Errorf("create session: %w", err)
	}

	util.Info("User logged in", util.String("email", user.Email), util.String("role", user.Role))
	return token, user, nil
}

// Verify checks signature, expiry and the server-side session state.
func (s *Service) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, ErrUnauthorized
	}

	// Fast path: a jti marked revoked in the cache fails immediately.
	if revoked, err := s.revoked.IsRevoked(ctx, claims.ID); err == nil && revoked {
		return nil, ErrUnauthorized
	}

	session, err := s.store.GetSessionByJTI(ctx, claims.ID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if session.RevokedAt != nil || session.ExpiresAt.Before(time.Now().UTC()) {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// Logout revokes the token's session. The token itself may still carry a
// valid signature afterwards; Verify rejects it via the session check.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return ErrUnauthorized
	}
	if err := s.store.RevokeSession(ctx, claims.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthorized
		}
		return fmt.Errorf("revoke session: %w", err)
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.revoked.MarkRevoked(ctx, claims.ID, ttl); err != nil {
		util.Warn("Failed to mark token revoked in cache", util.ErrorField(err))
	}
	util.Info("Session revoked", util.String("jti", claims.ID))
	return nil
}

// CurrentUser resolves the user behind verified claims. Claims carry a
// snapshot from login time; this returns the live row.
func (s *Service) CurrentUser(ctx context.Context, claims *Claims) (model.User, error) {
	if claims == nil {
		return model.User{}, ErrUnauthorized
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return model.User{}, ErrUnauthorized
	}
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, ErrUnauthorized
		}
		return model.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// RequireRole gates claims against an endpoint's required role.
func RequireRole(claims *Claims, role string) error {
	if claims == nil {
		return ErrUnauthorized
	}
	if claims.Role != role {
		return ErrForbidden
	}
	return nil
}

func (s *Service) parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
