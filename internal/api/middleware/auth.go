package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/attribution/pkg/response"
)

// ActorKey 管理员身份在 gin context 中的键，重放审计取这里
const ActorKey = "admin_actor"

// AdminAuth 管理端鉴权：优先 X-Admin-Key（bcrypt 校验静态密钥），
// 其次 Bearer JWT（HS256，sub 即操作者身份）
func AdminAuth(jwtSecret, keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-Admin-Key"); key != "" && keyHash != "" {
			if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err == nil {
				c.Set(ActorKey, "admin-key")
				c.Next()
				return
			}
			response.Unauthorized(c, "invalid admin key")
			c.Abort()
			return
		}

		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			response.Unauthorized(c, "missing credentials")
			c.Abort()
			return
		}
		actor, err := parseActor(strings.TrimPrefix(auth, "Bearer "), jwtSecret)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		c.Set(ActorKey, actor)
		c.Next()
	}
}

func parseActor(tokenStr, secret string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("missing subject")
	}
	return sub, nil
}

// Actor 读取已认证的管理员身份
func Actor(c *gin.Context) string {
	if v, ok := c.Get(ActorKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
