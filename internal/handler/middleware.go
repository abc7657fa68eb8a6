package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"campuspay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin = "admin"
	RoleStore = "store"

	principalKey = "principal"
)

// Claims 认证服务签发的令牌内容，这里只验签不再校验账号
type Claims struct {
	UserID  int64  `json:"userId"`
	Role    string `json:"role"`
	StoreID int64  `json:"storeId,omitempty"`
	jwt.RegisteredClaims
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if query != "" {
			path = path + "?" + query
		}
		attrs := []any{
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
		}
		if p, ok := principal(c); ok {
			attrs = append(attrs, "user_id", p.UserID, "role", p.Role)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("http", attrs...)
			return
		}
		logger.Info("http", attrs...)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic", "error", err, "path", c.Request.URL.Path)
				response.ServerError(c, "服务器内部错误")
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// AuthMiddleware 校验 HS256 Bearer 令牌，把 Claims 放进请求上下文
func AuthMiddleware(secret []byte, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "Authorization header required")
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			response.Unauthorized(c, "Invalid Authorization header format")
			return
		}

		claims := &Claims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			msg := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Token expired"
			}
			response.Unauthorized(c, msg)
			return
		}
		if claims.Role != RoleAdmin && claims.Role != RoleStore {
			response.Unauthorized(c, "Invalid token role")
			return
		}
		if claims.Role == RoleStore && claims.StoreID == 0 {
			response.Unauthorized(c, "Store token without store id")
			return
		}

		c.Set(principalKey, claims)
		c.Next()
	}
}

// RequireRole 角色守卫，须挂在 AuthMiddleware 之后
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			response.Unauthorized(c, "Authentication required")
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "Access denied")
	}
}

func principal(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Claims)
	return p, ok
}

// IssueToken 签发令牌，供运维命令和测试使用。ttl 为 0 时不设过期时间
func IssueToken(secret []byte, issuer string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.Issuer = issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
