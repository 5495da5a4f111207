package api

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/jwt"
	"github.com/dmitrymomot/planguard/pkg/logger"
)

// Development headers naming the caller when no token verifier is configured.
const (
	HeaderUserID = "X-User-ID"
	HeaderTeamID = "X-Team-ID"
)

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p jwt.Principal
		if s.auth != nil {
			token, err := jwt.BearerToken(r)
			if err == nil {
				p, err = s.auth.Parse(token)
			}
			if err != nil {
				writeError(w, err)
				return
			}
		} else {
			p = jwt.Principal{UserID: r.Header.Get(HeaderUserID), TeamID: r.Header.Get(HeaderTeamID)}
			if p.UserID == "" {
				writeError(w, errUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(jwt.WithPrincipal(r.Context(), p)))
	})
}

func principal(r *http.Request) entitlement.Principal {
	p, _ := jwt.PrincipalFromContext(r.Context())
	return entitlement.Principal{UserID: p.UserID, TeamID: p.TeamID}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := s.limiter.Reserve(principal(r).UserID, s.now())
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, errTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Int("status", status),
			logger.Duration(time.Since(start)),
		)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.ErrorContext(r.Context(), "panic in handler",
				logger.Error(fmt.Errorf("%v", rec)),
				slog.String("stack", string(debug.Stack())),
			)
			writeError(w, errInternal)
		}()
		next.ServeHTTP(w, r)
	})
}
