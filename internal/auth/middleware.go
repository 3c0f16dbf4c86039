package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type identityKey struct{}

// WithIdentity кладёт личность в контекст.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// FromContext достаёт личность, положенную Authenticate.
func FromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// ErrorWriter пишет ответ об ошибке доступа в формате API.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, message string)

// Authenticate требует валидный токен из cookie `jwt` или заголовка Authorization: Bearer.
func Authenticate(tokens *TokenManager, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := tokens.Verify(tokenFromRequest(r))
			if err != nil {
				message := ErrTokenInvalid.Error()
				if errors.Is(err, ErrTokenMissing) {
					message = ErrTokenMissing.Error()
				}
				writeError(w, r, http.StatusUnauthorized, message)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAdmin пропускает только администраторов. Ставится после Authenticate.
func RequireAdmin(writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := FromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, ErrTokenMissing.Error())
				return
			}
			if !identity.IsAdmin {
				writeError(w, r, http.StatusForbidden, "not authorized as admin")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetCookie выставляет токен в httpOnly cookie.
func SetCookie(w http.ResponseWriter, token string, tokens *TokenManager, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(tokens.TTL().Seconds()),
	})
}

func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
