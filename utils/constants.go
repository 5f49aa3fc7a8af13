package utils

// ContextKey is the type for request-scoped context values passed into flows
type ContextKey string

const (
	RequestIDKey  ContextKey = "request_id"
	UserAgentKey  ContextKey = "user_agent"
	IPAddressKey  ContextKey = "ip_address"
	EndpointKey   ContextKey = "endpoint"
	TimeoutKey    ContextKey = "timeout"
	CancelFuncKey ContextKey = "cancel_func"
)

// Slug constraints
const (
	// MaxSlugLength is the hard upper bound on slug length
	MaxSlugLength = 33

	// SlugSuggestionCount is the default number of alternatives offered on collision
	SlugSuggestionCount = 5
)

// Version constraints
const (
	// DefaultMaxVersionsPerCode caps the number of styled renders per QR code
	DefaultMaxVersionsPerCode = 20

	// DefaultVersionName is used when a version is created without a display label
	DefaultVersionName = "Default"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)
