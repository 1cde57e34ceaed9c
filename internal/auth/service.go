package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)

// Roles known to the platform. The authentication service issues them;
// this service only checks that a role is permitted for a mutation.
const (
	RolePatient   = "patient"
	RoleDoctor    = "doctor"
	RolePharmacy  = "pharmacy"
	RoleAuthority = "authority"
	RoleAdmin     = "admin"
	RoleAISystem  = "ai_system"
)

// Claims mirrors the token payload issued by the external
// authentication service: {userId, email, role}. Credentials are never
// re-validated here; the signature check is the whole trust boundary.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

type Service interface {
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

type service struct {
	jwtSecret []byte
}

func NewService(jwtSecret string) Service {
	return &service{jwtSecret: []byte(jwtSecret)}
}

func (s *service) ValidateToken(_ context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.UserID == "" || claims.Role == "" {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}
