package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpiredToken 表示令牌已过期。
	ErrExpiredToken = errors.New("token expired")
	// ErrInvalidToken 表示令牌签名或内容非法。
	ErrInvalidToken = errors.New("invalid token")
)

// TokenManager 负责签发与校验登录令牌。
//
// 令牌为 HS256 签名的 JWT，Subject 携带用户 ID，有效性完全由
// 签名与过期时间决定，服务端不保存任何会话状态。
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager 创建 TokenManager。ttl 为 0 时使用 24 小时。
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue 为指定用户签发令牌。
func (m *TokenManager) Issue(userID uint) (string, error) {
	return m.IssueWithTTL(userID, m.ttl)
}

// IssueWithTTL 以指定有效期签发令牌。ttl 可以为负，用于构造已过期的令牌。
func (m *TokenManager) IssueWithTTL(userID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify 校验令牌并返回其中的用户 ID。
//
// 返回值:
//
//	uint: 令牌携带的用户 ID
//	error: ErrExpiredToken 或 ErrInvalidToken
func (m *TokenManager) Verify(tokenStr string) (uint, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredToken
		}
		return 0, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return 0, ErrInvalidToken
	}

	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return uint(uid), nil
}
