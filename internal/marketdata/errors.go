package marketdata

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned when the upstream payload carries a rate-limit
// notice. Callers may retry after a delay; it is distinct from a parse
// failure.
var ErrRateLimited = errors.New("market data: upstream rate limit")

// ErrNoCache is returned when the spot fetch fails upstream and no usable
// cache entry exists.
var ErrNoCache = errors.New("market data: upstream unavailable and no cached price")

// APIError represents a non-2xx upstream response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market data API error %d: %s", e.Status, e.Body)
}
