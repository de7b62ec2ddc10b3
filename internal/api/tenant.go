package api

import (
	"context"
	"net/http"

	"github.com/toyiyo/nimble-pnl-sub016/internal/security"
)

// RestaurantIDHeader carries the tenant scope for every request. The
// value is supplied by the upstream tenant context; this service only
// propagates it.
const RestaurantIDHeader = "X-Restaurant-ID"

type restaurantIDKey struct{}

// RequireRestaurant rejects requests without a tenant scope and makes
// the restaurant id available on the request context.
func RequireRestaurant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(RestaurantIDHeader)
		if rid == "" {
			security.WriteJSONError(w, r, http.StatusBadRequest, "missing_restaurant_id")
			return
		}
		ctx := context.WithValue(r.Context(), restaurantIDKey{}, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RestaurantIDFromContext returns the tenant scope set by
// RequireRestaurant.
func RestaurantIDFromContext(ctx context.Context) string {
	if v := ctx.Value(restaurantIDKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
