package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/frahmantamala/factory-console/internal"
)

// Claims represents session token claims.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// SessionTokenGenerator signs and validates bearer tokens for the HTTP shell.
// The token only names the user; the auth middleware re-reads the directory
// so revocations take effect immediately.
type SessionTokenGenerator struct {
	Secret []byte
	TTL    time.Duration
}

func NewSessionTokenGenerator(secret string, ttl time.Duration) *SessionTokenGenerator {
	return &SessionTokenGenerator{
		Secret: []byte(secret),
		TTL:    ttl,
	}
}

func (g *SessionTokenGenerator) Generate(userID, username string) (string, error) {
	expiresAt := time.Now().Add(g.TTL)

	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(g.Secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func (g *SessionTokenGenerator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.Secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, apperrors.ErrInvalidToken
}

// VerifyCredential compares a stored credential with the supplied password.
// Stored values that carry a bcrypt prefix are verified as hashes; anything
// else falls back to plain equality, which the legacy seed data relies on.
func VerifyCredential(stored, supplied string) bool {
	if len(stored) > 4 && stored[0] == '$' && stored[1] == '2' {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	return stored == supplied
}

// HashPassword creates a bcrypt hash for newly issued credentials.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
