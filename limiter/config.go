package limiter

import (
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Valid LimitBy types
var validLimitBy = map[string]bool{
	LimitByIP:       true,
	LimitByDeviceID: true,
	LimitByUserID:   true,
}

// Rule defines a single rate limiting rule.
type Rule struct {
	Path      string `yaml:"path"`      // request path (can be regex if IsRegex is true)
	IsRegex   bool   `yaml:"is_regex"`  // indicates if Path is a regex
	Algorithm string `yaml:"algorithm"` // one of the Algorithm* constants

	// Limit and Window configure fixed_window and sliding_window:
	// Limit cost units per Window seconds.
	Limit  uint32  `yaml:"limit"`
	Window float64 `yaml:"window"`

	// Capacity and Rate configure token_bucket and leaky_bucket:
	// bucket size and tokens refilled / cost drained per second.
	Capacity float64 `yaml:"capacity"`
	Rate     float64 `yaml:"rate"`

	LimitBy []string `yaml:"limit_by"` // identifiers to limit by ("ip", "device_id", "user_id")

	// internal fields
	compiledRegex *regexp.Regexp // compiled regex for performance
	limiter       LimiterType    // built by ValidateAndPrepare
}

// Limiter returns the LimiterType built for this rule by
// ValidateAndPrepare, or nil if the config was not prepared.
func (r *Rule) Limiter() LimiterType {
	return r.limiter
}

// Config holds the overall rate limiter configuration.
type Config struct {
	StorageType string `yaml:"storage_type"` // "memory" or "redis"
	Rules       []Rule `yaml:"rules"`
}

// LoadConfig decodes a YAML configuration and prepares it for use.
func LoadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.ValidateAndPrepare(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateAndPrepare processes the raw config, validates it, and builds
// the limiter for each rule.
func (c *Config) ValidateAndPrepare() error {
	if c.StorageType != StorageMemory && c.StorageType != StorageRedis {
		return fmt.Errorf("invalid storage_type: %s, must be '%s' or '%s'", c.StorageType, StorageMemory, StorageRedis)
	}

	if len(c.Rules) == 0 {
		log.Warn().Msg("no rate limit rules defined in config")
	}

	seenPaths := make(map[string]bool)
	for i := range c.Rules {
		rule := &c.Rules[i] // operate on pointer to modify original slice element

		// validate path uniqueness
		if seenPaths[rule.Path] {
			return fmt.Errorf("duplicate path definition found: %s", rule.Path)
		}
		seenPaths[rule.Path] = true

		// compile regex if needed
		if rule.IsRegex {
			re, err := regexp.Compile(rule.Path)
			if err != nil {
				return fmt.Errorf("failed to compile regex for path '%s': %w", rule.Path, err)
			}
			rule.compiledRegex = re
		}

		// validate LimitBy types
		if len(rule.LimitBy) == 0 {
			return fmt.Errorf("rule for path '%s' must have at least one limit_by type", rule.Path)
		}
		for _, lb := range rule.LimitBy {
			if !validLimitBy[lb] {
				return fmt.Errorf("rule for path '%s' has invalid limit_by type: '%s'", rule.Path, lb)
			}
		}

		// validate algorithm parameters and build the limiter
		limiter, err := rule.buildLimiter()
		if err != nil {
			return err
		}
		rule.limiter = limiter
	}
	return nil
}

// buildLimiter constructs the LimiterType a rule describes.
func (r *Rule) buildLimiter() (LimiterType, error) {
	switch r.Algorithm {
	case AlgorithmFixedWindow, AlgorithmSlidingWindow:
		if r.Limit == 0 {
			return nil, fmt.Errorf("rule for path '%s' has invalid limit: %d, must be positive", r.Path, r.Limit)
		}
		// window counters keep millisecond timestamps, so anything shorter
		// than 1ms would collapse to a zero-length window
		if r.Window < 0.001 {
			return nil, fmt.Errorf("rule for path '%s' has invalid window: %f, must be at least 0.001 seconds", r.Path, r.Window)
		}
		window := time.Duration(r.Window * float64(time.Second))
		if r.Algorithm == AlgorithmFixedWindow {
			return FixedWindow{Limit: r.Limit, Window: window}, nil
		}
		return SlidingWindow{Limit: r.Limit, Window: window}, nil

	case AlgorithmTokenBucket, AlgorithmLeakyBucket:
		if r.Capacity <= 0 {
			return nil, fmt.Errorf("rule for path '%s' has invalid capacity: %f, must be positive", r.Path, r.Capacity)
		}
		if r.Rate <= 0 {
			return nil, fmt.Errorf("rule for path '%s' has invalid rate: %f, must be positive", r.Path, r.Rate)
		}
		if r.Algorithm == AlgorithmTokenBucket {
			return TokenBucket{Capacity: r.Capacity, RefillRate: r.Rate}, nil
		}
		return LeakyBucket{Capacity: r.Capacity, LeakRate: r.Rate}, nil

	default:
		return nil, fmt.Errorf("rule for path '%s' has invalid algorithm: '%s'", r.Path, r.Algorithm)
	}
}
