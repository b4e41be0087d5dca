package middleware

import (
	"net/http"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/user"
	"github.com/cmlabs-hris/studio-payroll/internal/handler/http/response"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/jwt"
	"github.com/go-chi/jwtauth/v5"
)

// AuthRequired rejects requests without a valid access token and places the
// caller on the request context as a user.Actor.
func AuthRequired(next http.Handler) http.Handler {
	hfn := func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			response.Unauthorized(w, err.Error())
			return
		}

		if token == nil {
			response.HandleError(w, user.ErrInvalidTokenClaims)
			return
		}

		actor, err := jwt.ActorFromClaims(claims)
		if err != nil {
			response.HandleError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(user.WithActor(r.Context(), actor)))
	}
	return http.HandlerFunc(hfn)
}
