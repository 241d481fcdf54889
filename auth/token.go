package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"supportdesk/domain"
)

// jwtKey is the secret used to sign tokens.
// In a production environment, this should be loaded from an environment
// variable or a secret manager.
var jwtKey = []byte("my_strong_and_long_secret_key_2026")

// SetSigningKey overrides the token secret, called once at startup.
func SetSigningKey(key []byte) {
	if len(key) > 0 {
		jwtKey = key
	}
}

// CustomClaims defines the identity stored inside the channel credential.
// Token issuance belongs to an external collaborator; this subsystem only
// needs to validate tokens and read the participant out of them.
type CustomClaims struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for a participant. Kept for tests
// and local tooling; production tokens come from the identity service.
func GenerateToken(p domain.Participant, duration time.Duration) (string, error) {
	claims := &CustomClaims{
		ParticipantID: p.ID,
		Name:          p.Name,
		Role:          string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "supportdesk",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtKey)
}

// ValidateToken parses and validates the signature and expiration of a
// JWT string, returning the participant it identifies.
func ValidateToken(tokenString string) (domain.Participant, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtKey, nil
	})
	if err != nil {
		return domain.Participant{}, err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return domain.Participant{}, jwt.ErrSignatureInvalid
	}

	role := domain.Role(claims.Role)
	if role != domain.RoleUser && role != domain.RoleAgent {
		return domain.Participant{}, jwt.ErrTokenInvalidClaims
	}
	return domain.Participant{ID: claims.ParticipantID, Name: claims.Name, Role: role}, nil
}
