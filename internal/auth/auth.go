package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sol1corejz/invertgold/cmd/config"
	"github.com/sol1corejz/invertgold/internal/models"
	"github.com/sol1corejz/invertgold/internal/referral"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"userID"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Session is the signed-in member as carried by their token. It is passed
// explicitly to whatever needs the member's identity.
type Session struct {
	UserID   int64
	Username string
	Email    string
	Role     string
	Token    string
	Expires  time.Time
}

func (s Session) Identity() referral.Identity {
	return referral.Identity{ID: s.UserID, Username: s.Username, Email: s.Email}
}

func (s Session) IsAdmin() bool {
	return s.Role == models.RoleAdmin
}

func TokenExp() time.Duration {
	if config.TokenTTL <= 0 {
		return 24 * time.Hour
	}
	return config.TokenTTL
}

func GenerateToken(user models.User) (string, time.Time, error) {
	expires := time.Now().Add(TokenExp())
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func ParseToken(tokenString string) (Session, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return Session{}, ErrInvalidToken
	}

	s := Session{
		UserID:   claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
		Role:     claims.Role,
		Token:    tokenString,
	}
	if claims.ExpiresAt != nil {
		s.Expires = claims.ExpiresAt.Time
	}
	return s, nil
}
