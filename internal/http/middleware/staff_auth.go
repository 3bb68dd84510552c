package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinicops/internal/http/httpx"
	"github.com/wolfman30/clinicops/internal/profiles"
	"github.com/wolfman30/clinicops/internal/tenancy"
)

// RoleAdmin may act on any clinic.
const RoleAdmin = string(profiles.RoleAdmin)

// StaffClaims are the claims carried by a staff bearer token.
type StaffClaims struct {
	jwt.RegisteredClaims
	Role     string `json:"role"`
	ClinicID string `json:"clinic_id"`
}

// StaffJWT validates an HMAC-signed bearer token and stores the caller as the
// request's tenancy.Actor. Only doctor and admin tokens pass; patient or
// unknown roles get 403. Tokens are issued elsewhere.
func StaffJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				httpx.Error(w, "staff auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				httpx.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			var claims StaffClaims
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || claims.Subject == "" {
				httpx.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			role, err := profiles.ParseRole(claims.Role)
			if err != nil || !role.CanManageClinic() {
				httpx.Error(w, "staff role required", http.StatusForbidden)
				return
			}

			actor := tenancy.Actor{UserID: claims.Subject, Role: string(role)}
			if claims.ClinicID != "" {
				id, err := uuid.Parse(claims.ClinicID)
				if err != nil {
					httpx.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
				actor.ClinicID = id
			}
			if actor.Role != RoleAdmin && actor.ClinicID == uuid.Nil {
				httpx.Error(w, "token has no clinic", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(tenancy.WithActor(r.Context(), actor)))
		})
	}
}

// ClinicScope rejects requests whose {clinicID} path parameter differs from the
// actor's clinic. Admins may act on any clinic. Mount it inside the
// /clinics/{clinicID} route, after StaffJWT.
func ClinicScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clinicID, err := uuid.Parse(chi.URLParam(r, "clinicID"))
		if err != nil {
			httpx.Error(w, "invalid clinicID", http.StatusBadRequest)
			return
		}
		actor := tenancy.ActorFromContext(r.Context())
		if actor.Role != RoleAdmin && actor.ClinicID != clinicID {
			httpx.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(tenancy.WithClinicID(r.Context(), clinicID)))
	})
}
