// Package identity verifies access tokens issued by the external identity
// provider and carries the resulting subject through request contexts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ButyrinIA/lostfound/internal/models"
)

var (
	ErrInvalidToken  = errors.New("invalid access token")
	ErrDomainBlocked = errors.New("email domain is not allowed")
	ErrNoSecret      = errors.New("signing secret is not configured")
)

// Provider answers who is performing the current operation.
type Provider interface {
	CurrentSubject(ctx context.Context) *models.Subject
}

type subjectKey struct{}

func WithSubject(ctx context.Context, s *models.Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, s)
}

// SubjectFrom returns the subject stored in ctx, or nil.
func SubjectFrom(ctx context.Context) *models.Subject {
	s, _ := ctx.Value(subjectKey{}).(*models.Subject)
	return s
}

// ContextProvider reads the subject placed in the context by the auth
// middleware.
type ContextProvider struct{}

func (ContextProvider) CurrentSubject(ctx context.Context) *models.Subject {
	return SubjectFrom(ctx)
}

type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret        []byte
	allowedDomain string
}

// NewVerifier returns a verifier for HS256 tokens. An empty allowedDomain
// accepts any email. A verifier with an empty secret rejects every token.
func NewVerifier(secret, allowedDomain string) *Verifier {
	return &Verifier{secret: []byte(secret), allowedDomain: strings.ToLower(allowedDomain)}
}

func (v *Verifier) Verify(tokenStr string) (*models.Subject, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrNoSecret)
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if !v.DomainAllowed(claims.Email) {
		return nil, fmt.Errorf("%w: %s", ErrDomainBlocked, claims.Email)
	}

	return &models.Subject{ID: claims.Subject, Email: claims.Email, DisplayName: claims.Name}, nil
}

func (v *Verifier) DomainAllowed(email string) bool {
	if v.allowedDomain == "" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(email), v.allowedDomain)
}

// Issue signs a token for s. Used for local development only; production
// tokens come from the identity provider.
func (v *Verifier) Issue(s *models.Subject, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := Claims{
		Email: s.Email,
		Name:  s.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// AuthorName is the display name, or the local part of the email when the
// subject has none.
func AuthorName(s *models.Subject) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	if i := strings.IndexByte(s.Email, '@'); i >= 0 {
		return s.Email[:i]
	}
	return s.Email
}
