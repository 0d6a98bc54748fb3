package limiter

// Algorithm names accepted in rule configuration.
const (
	AlgorithmFixedWindow   = "fixed_window"
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmTokenBucket   = "token_bucket"
	AlgorithmLeakyBucket   = "leaky_bucket"
)

// LimitBy types
const (
	LimitByIP       = "ip"
	LimitByDeviceID = "device_id"
	LimitByUserID   = "user_id"
)

// Storage types
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)
