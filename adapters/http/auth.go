package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/relay/utils/log"
)

const tokenIssuer = "chat-relay"

type Claims struct {
	jwt.RegisteredClaims
}

// JWTAuth guards routes with HS256 bearer tokens. Websocket clients that
// cannot set headers may pass the token as the "token" query parameter.
func JWTAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString := c.QueryParam("token")
			if authHeader := c.Request().Header.Get(echo.HeaderAuthorization); authHeader != "" {
				tokenString = strings.TrimPrefix(authHeader, "Bearer ")
				if tokenString == authHeader {
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
				}
			}
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
			}

			token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return secret, nil
			}, jwt.WithIssuer(tokenIssuer))
			if err != nil || !token.Valid {
				log.WithCtx(c.Request().Context()).Info("Rejected token", zap.Error(err))
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}

			if claims, ok := token.Claims.(*Claims); ok {
				c.Set("subject", claims.Subject)
			}
			return next(c)
		}
	}
}
