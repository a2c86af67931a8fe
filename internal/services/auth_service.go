package services

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// TokenSigner mints an admin bearer token for subject.
type TokenSigner func(subject string, ttl time.Duration) (string, error)

// AdminAuthService exchanges the operator password for a short-lived admin
// token. There is a single operator account configured by password hash.
type AdminAuthService struct {
	passHash  []byte
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	Token     string
	ExpiresIn time.Duration
}

func NewAdminAuthService(passHash string, signer TokenSigner, ttl time.Duration) *AdminAuthService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AdminAuthService{passHash: []byte(strings.TrimSpace(passHash)), signToken: signer, tokenTTL: ttl}
}

// HashPassword returns the bcrypt hash operators put in configuration.
func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", NewInvalidError("password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *AdminAuthService) Login(password string) (*AuthResult, error) {
	if strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("password required")
	}
	if len(s.passHash) == 0 {
		return nil, NewUnauthorizedError("admin login disabled")
	}
	if err := bcrypt.CompareHashAndPassword(s.passHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken("admin", s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresIn: s.tokenTTL}, nil
}

func (s *AdminAuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
