// Package auth issues and validates the HS256 JWTs that authenticate sync
// devices.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nimbusbrowser/nimbus/internal/common"
)

// Claims carries the registered claims plus the sync account and device the
// token was minted for.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string
	DeviceID string
}

// GenerateToken mints a signed access token binding userID and deviceID for
// validityDuration.
func GenerateToken(userID, deviceID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID:   userID,
		DeviceID: deviceID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken validates tokenString against secretKey and returns its claims.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
