package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/banking/txn-monitoring-service/internal/config"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
)

// RequestRecorder observes served requests
type RequestRecorder interface {
	HTTPRequest(method, path string, code int, d time.Duration)
}

// ActorContextKey holds the authenticated subject
const ActorContextKey = "actor"

var errMissingToken = errors.New("missing bearer token")

// JWTAuth accepts HMAC-signed bearer tokens issued with secret
func JWTAuth(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := parseBearer(c.Request().Header.Get(echo.HeaderAuthorization), key)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			}
			c.Set(ActorContextKey, claims.Subject)
			return next(c)
		}
	}
}

func parseBearer(header string, key []byte) (*jwt.RegisteredClaims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errMissingToken
	}

	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// RequestContext copies the echo request id into the request context
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			if id != "" {
				ctx := context.WithValue(c.Request().Context(), logger.RequestIDKey, id)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}

// RequestLogger logs every request through zap
func RequestLogger(log *logger.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				log.Error("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	})
}

// RequestMetrics records request counts and latency by route
func RequestMetrics(rec RequestRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			code := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				code = he.Code
			}
			rec.HTTPRequest(c.Request().Method, c.Path(), code, time.Since(start))
			return err
		}
	}
}

// NewEcho builds the echo instance with the service middleware stack
func NewEcho(cfg config.Config, rec RequestRecorder, log *logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(RequestContext())
	e.Use(RequestLogger(log.Named("http")))
	e.Use(middleware.Secure())
	if cfg.Server.MaxRequestSize > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", cfg.Server.MaxRequestSize)))
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Security.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
	}))
	if cfg.Security.RateLimitPerMinute > 0 {
		perSecond := rate.Limit(float64(cfg.Security.RateLimitPerMinute) / 60)
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(perSecond)))
	}
	if rec != nil {
		e.Use(RequestMetrics(rec))
	}
	return e
}

// APIMiddleware returns the middleware applied to /api routes
func APIMiddleware(cfg config.SecurityConfig) []echo.MiddlewareFunc {
	if cfg.JWTSecret == "" {
		return nil
	}
	return []echo.MiddlewareFunc{JWTAuth(cfg.JWTSecret)}
}
