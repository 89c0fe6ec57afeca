package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingToken is returned when a connection presents no token.
	ErrMissingToken = errors.New("missing token")
	// ErrMissingIdentity is returned when no user id can be established.
	ErrMissingIdentity = errors.New("missing user id")
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrIdentityMismatch is returned when the claimed user id differs from the token's.
	ErrIdentityMismatch = errors.New("user id does not match token")
)

// Service establishes connection identity.
//
// With verification off, any non-empty token is accepted and the claimed user id
// is trusted. With verification on, the token must be a valid HS256 JWT and the
// identity comes from its claims.
type Service struct {
	jwtConfig *JWTConfig
	verify    bool
}

// NewService creates a new authentication service.
func NewService(jwtConfig *JWTConfig, verify bool) *Service {
	return &Service{
		jwtConfig: jwtConfig,
		verify:    verify,
	}
}

// Verifying reports whether tokens are cryptographically checked.
func (s *Service) Verifying() bool {
	return s.verify
}

// Authenticate resolves the identity of a connection from its handshake.
func (s *Service) Authenticate(claimedUserID, token string) (string, error) {
	claimedUserID = strings.TrimSpace(claimedUserID)
	if token == "" {
		return "", ErrMissingToken
	}
	if !s.verify {
		if claimedUserID == "" {
			return "", ErrMissingIdentity
		}
		return claimedUserID, nil
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		return "", err
	}
	if claimedUserID != "" && claimedUserID != claims.UserID {
		return "", ErrIdentityMismatch
	}
	return claims.UserID, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := ValidateToken(s.jwtConfig, tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// IssueToken mints a token for userID.
func (s *Service) IssueToken(userID, username string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrMissingIdentity
	}
	token, err := GenerateToken(s.jwtConfig, userID, username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}
