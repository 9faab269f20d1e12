package utils

import (
	"errors"
	"fmt"
	"time"

	"go-qtbridge/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

// 绑定对的富头部链接令牌声明
type PairClaims struct {
	PairID   uint   `json:"pair_id"`
	SenderID string `json:"sender_id"`
	jwt.RegisteredClaims
}

func secret() []byte {
	return []byte(config.GlobalConfig.Bridge.RichHeaderSecret)
}

// 为某个绑定对的发送者签发富头部令牌
func GeneratePairToken(pairID uint, senderID string) (string, error) {
	expire := time.Duration(config.GlobalConfig.Bridge.RichHeaderExpires) * time.Second
	if expire <= 0 {
		expire = 24 * time.Hour
	}
	claims := PairClaims{
		PairID:   pairID,
		SenderID: senderID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expire)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret())
}

// 解析富头部令牌
func ParsePairToken(tokenString string) (*PairClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PairClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret(), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*PairClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
