package handler

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Token, X-Session-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type adminClaims struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// RequireAdmin gates the reporting endpoints: a valid bearer token with the
// admin role is mandatory. The track endpoint stays open.
func RequireAdmin(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := bearerToken(r)
			if credential == "" {
				writeJSON(w, http.StatusUnauthorized, statusResponse{Success: false, Message: "not authorized"})
				return
			}

			claims := &adminClaims{}
			token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenUnverifiable
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				writeJSON(w, http.StatusUnauthorized, statusResponse{Success: false, Message: "invalid token"})
				return
			}
			if claims.Role != "admin" {
				writeJSON(w, http.StatusForbidden, statusResponse{Success: false, Message: "admin access required"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
