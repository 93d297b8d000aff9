package server

import "net/http"

// noCache disables caching on the Reader endpoints: rank order changes
// between tournament runs and a stale front page is worse than a
// re-fetch.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}
