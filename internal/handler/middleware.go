package handler

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// apiCSP は JSON しか返さない /api/・/admin/ 用。何も読み込ませない。
const apiCSP = "default-src 'none'; frame-ancestors 'none'"

// siteCSP は PUBLIC_DIR の静的サイト（HTML/CSS/JS と画像）用。
// フォームは同一オリジンの /api/* へ fetch で送る。
var siteCSP = strings.Join([]string{
	"default-src 'self'",
	"script-src 'self'",
	"style-src 'self' 'unsafe-inline'",
	"img-src 'self' data:",
	"font-src 'self'",
	"connect-src 'self'",
	"form-action 'self'",
	"base-uri 'self'",
	"object-src 'none'",
	"frame-ancestors 'none'",
}, "; ")

func isAPIPath(p string) bool {
	return strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/admin/")
}

// SecurityHeaders はレスポンスにセキュリティ系ヘッダを付ける。
// CSP はパスで切り替え、HSTS は https で配信しているとき（hsts=true）だけ送る。
func SecurityHeaders(hsts bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()")
			if isAPIPath(r.URL.Path) {
				h.Set("Content-Security-Policy", apiCSP)
				h.Set("Cache-Control", "no-store")
			} else {
				h.Set("Content-Security-Policy", siteCSP)
			}
			if hsts {
				h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter はクライアント IP ごとの 1 分スライディングウィンドウで投稿を制限する。
type RateLimiter struct {
	limit          int
	trustedProxies int
	now            func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewRateLimiter は 1 分あたり limit 件までを許す。trustedProxies は
// 前段のリバースプロキシ段数（0 なら X-Forwarded-For を見ない）。
// 掃除用 goroutine を止めるため Close を呼ぶこと。
func NewRateLimiter(limit, trustedProxies int) *RateLimiter {
	rl := &RateLimiter{
		limit:          limit,
		trustedProxies: trustedProxies,
		now:            time.Now,
		hits:           make(map[string][]time.Time),
		done:           make(chan struct{}),
	}
	go rl.sweep(5 * time.Minute)
	return rl
}

// Close は何度呼んでもよい。
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-t.C:
			cutoff := rl.now().Add(-time.Minute)
			rl.mu.Lock()
			for ip, ts := range rl.hits {
				if ts = recent(ts, cutoff); len(ts) == 0 {
					delete(rl.hits, ip)
				} else {
					rl.hits[ip] = ts
				}
			}
			rl.mu.Unlock()
		}
	}
}

// recent は cutoff より後の時刻だけを残す（in place）。
func recent(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// allow は ip の今回のリクエストを記録して可否を返す。拒否時は再試行までの待ち時間も返す。
func (rl *RateLimiter) allow(ip string) (bool, time.Duration) {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	ts := recent(rl.hits[ip], now.Add(-time.Minute))
	if len(ts) >= rl.limit {
		rl.hits[ip] = ts
		return false, ts[0].Add(time.Minute).Sub(now)
	}
	rl.hits[ip] = append(ts, now)
	return true, 0
}

// Middleware は上限を超えたリクエストに 429 と Retry-After を返す。
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, rl.trustedProxies)
		ok, wait := rl.allow(ip)
		if !ok {
			slog.WarnContext(r.Context(), "rate limit exceeded", "client_ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(int(wait/time.Second)+1))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP は X-Forwarded-For の右から trustedProxies 番目を採用する。
// 左側はクライアントが自由に書けるので使わない。値が IP として読めなければ RemoteAddr。
func clientIP(r *http.Request, trustedProxies int) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" && trustedProxies > 0 {
		parts := strings.Split(xff, ",")
		if i := len(parts) - trustedProxies; i >= 0 {
			if ip := net.ParseIP(strings.TrimSpace(parts[i])); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
