package gateway

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/justinas/alice"
	"github.com/rs/cors"
)

// CallerHeader carries the caller identity. Authentication is done upstream.
const CallerHeader = "X-Caller"

// ReceiptHeader carries the compact gzip receipt of a settlement.
const ReceiptHeader = "X-Settlement-Receipt"

func (s *Server) middleware(allowedOrigins []string) alice.Chain {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", CallerHeader},
		ExposedHeaders: []string{ReceiptHeader},
	})
	return alice.New(recoverPanic, logRequest, c.Handler, secureHeaders)
}

func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				log.Printf("ERROR: Panic recovered in %s %s: %v", r.Method, r.URL.Path, err)
				writeError(w, http.StatusInternalServerError, "Internal", fmt.Sprintf("%v", err))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("INFO: %s %s %s (%s)", r.RemoteAddr, r.Method, r.URL.RequestURI(), time.Since(start))
	})
}

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "deny")
		next.ServeHTTP(w, r)
	})
}
