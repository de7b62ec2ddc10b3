package security

import "net/http"

// BodySizeLimit caps request body size. A maxBytes of zero or less
// disables the limit. Downstream readers see *http.MaxBytesError when
// the cap is exceeded.
func BodySizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
