package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"van-dispatch/internal/config"
	"van-dispatch/internal/logger"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const claimsKey contextKey = "claims"

// ErrForbiddenRole токен валиден, но роль не администраторская
var ErrForbiddenRole = errors.New("role is not allowed")

// ErrNoSecret секрет подписи не задан, любой токен отклоняется
var ErrNoSecret = errors.New("jwt secret is not configured")

// JWTService проверяет и выпускает bearer токены администраторов (HS256)
type JWTService struct {
	secret    []byte
	issuer    string
	adminRole string
}

// NewJWT создает сервис токенов
func NewJWT(cfg *config.AuthConfig) *JWTService {
	role := cfg.AdminRole
	if role == "" {
		role = "admin"
	}
	return &JWTService{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer, adminRole: role}
}

// GenerateToken выпускает токен администратора, используется для выдачи доступа CLI и в тестах
func (j *JWTService) GenerateToken(sub string, expires time.Duration) (string, error) {
	if len(j.secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  sub,
		"role": j.adminRole,
		"iat":  now.Unix(),
		"exp":  now.Add(expires).Unix(),
	}
	if j.issuer != "" {
		claims["iss"] = j.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ParseToken проверяет подпись, срок действия, издателя и роль
func (j *JWTService) ParseToken(tokenStr string) (jwt.MapClaims, error) {
	if len(j.secret) == 0 {
		return nil, ErrNoSecret
	}
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if j.issuer != "" && !claims.VerifyIssuer(j.issuer, true) {
		return nil, errors.New("invalid issuer")
	}
	if role, _ := claims["role"].(string); role != j.adminRole {
		return nil, ErrForbiddenRole
	}
	return claims, nil
}

// Auth пропускает только запросы с валидным bearer токеном администратора
func Auth(j *JWTService, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.Fields(r.Header.Get("Authorization"))
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			claims, err := j.ParseToken(parts[1])
			if err != nil {
				log.WithError(err).WithField("path", r.URL.Path).Debug("Rejected bearer token")
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext возвращает claims, сохраненные Auth
func ClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(jwt.MapClaims)
	return claims, ok
}

// isVIP токены с claim vip=true получают повышенный лимит
func isVIP(ctx context.Context) bool {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return false
	}
	vip, _ := claims["vip"].(bool)
	return vip
}
