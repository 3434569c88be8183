package services

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type AnalystStore interface {
	FindAnalystByEmail(email string) (*Analyst, error)
	AddAnalyst(a *Analyst) error
}

type TokenSigner func(uid, email string, ttl time.Duration) (string, error)

type AuthService struct {
	store     AnalystStore
	now       func() time.Time
	idGen     func(prefix string, n int) string
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	Token     string `json:"token"`
	AnalystID string `json:"analyst_id"`
}

func NewAuthService(store AnalystStore, signer TokenSigner) *AuthService {
	return &AuthService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func(prefix string, n int) string { return prefix + shortID(n) },
		signToken: signer,
		tokenTTL:  12 * time.Hour,
	}
}

// CreateAnalyst registers an analyst account.
func (s *AuthService) CreateAnalyst(email, password string) (*Analyst, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	existing, err := s.store.FindAnalystByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("email exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	a := &Analyst{ID: s.idGen("a", 7), Email: email, PassHash: hash, CreatedAt: s.now()}
	if err := s.store.AddAnalyst(a); err != nil {
		return nil, err
	}
	return a, nil
}

// EnsureAnalyst creates the account unless the email is already registered.
func (s *AuthService) EnsureAnalyst(email, password string) error {
	_, err := s.CreateAnalyst(email, password)
	if se, ok := AsServiceError(err); ok && se.Code == ErrorConflict {
		return nil
	}
	return err
}

func (s *AuthService) Login(email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	a, err := s.store.FindAnalystByEmail(email)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(a.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(a.ID, a.Email, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, AnalystID: a.ID}, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}

// SetTokenTTL overrides the default 12h token lifetime.
func (s *AuthService) SetTokenTTL(ttl time.Duration) {
	if ttl > 0 {
		s.tokenTTL = ttl
	}
}
