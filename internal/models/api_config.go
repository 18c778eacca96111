package models

// RateLimitConfig holds token bucket parameters.
type RateLimitConfig struct {
	BucketSize      int `bson:"bucket_size" json:"bucket_size"`
	TokenRefillRate int `bson:"token_refill_rate" json:"token_refill_rate"` // tokens per second
}

// APIEndpointConfig overrides rate limits for a specific endpoint path.
// Stored in the `api_endpoints_config` collection.
type APIEndpointConfig struct {
	Base      `bson:",inline"`
	Endpoint  string           `bson:"endpoint" json:"endpoint"` // gin route path, e.g. /v1/conversations/:id/messages
	RateLimit *RateLimitConfig `bson:"rate_limit,omitempty" json:"rate_limit,omitempty"`
}
