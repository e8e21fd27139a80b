package middleware

import (
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"

	"pledgedesk/internal/models"
	"pledgedesk/internal/utils"
)

// AuthMiddleware checks for a valid JWT token and adds the acting user to
// the request context so audit entries carry a real actor.
func AuthMiddleware(jwtSecretKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorizationHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authorizationHeader, "Bearer ") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authorizationHeader, "Bearer ")

			// Parse and validate the token
			claims := &models.Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				return jwtSecretKey, nil
			})

			if err != nil || !token.Valid {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := utils.WithActor(r.Context(), models.Actor{
				ID:   claims.Username,
				Role: claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
