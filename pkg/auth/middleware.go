package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

type contextKey string

const adminIDKey contextKey = "admin_id"

// AdminIDFromContext は context から管理者IDを取得する
func AdminIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(adminIDKey).(string)
	return v, ok
}

// WithAdminID は context に管理者IDをセットする
func WithAdminID(ctx context.Context, adminID string) context.Context {
	return context.WithValue(ctx, adminIDKey, adminID)
}

// RequireAdmin は管理者セッション必須ミドルウェア。クッキーを検証し、管理者IDを context にセットする
func RequireAdmin(sessionSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName())
			if err != nil {
				writeUnauthorized(w, "unauthorized")
				return
			}

			adminID, err := VerifySessionToken(cookie.Value, sessionSecret, time.Now())
			if err != nil {
				code := "invalid_session"
				if errors.Is(err, ErrExpiredToken) {
					code = "session_expired"
				}
				writeUnauthorized(w, code)
				return
			}

			ctx := WithAdminID(r.Context(), adminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// SessionCookie は管理者ログイン成功時に返すクッキーを生成する
func SessionCookie(adminID string, secret []byte, now time.Time, secure bool) *http.Cookie {
	expires := now.Add(SessionTTL)
	return &http.Cookie{
		Name:     SessionCookieName(),
		Value:    CreateSessionToken(adminID, expires, secret),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearSessionCookie はログアウト用の失効済みクッキーを返す
func ClearSessionCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}
