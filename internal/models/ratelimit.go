package models

// RateLimitWindow is the cache-stored counter for the sliding-window-by-reset
// limiter. WindowStart is unix seconds. The key carries the scope and
// identifier; the value is this JSON blob with a TTL of the window size.
type RateLimitWindow struct {
	Count       int64 `json:"count"`
	WindowStart int64 `json:"window_start"`
}
