package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"

	"github.com/waseemanjum-be/NotifyHub/internal/domain"
)

type Config struct {
	MongoURI string `env:"MONGODB_URI,required=true"`
	MongoDB  string `env:"MONGODB_DB,required=true"`

	EmailProviderBaseURL string `env:"EMAIL_PROVIDER_BASE_URL"`
	EmailProviderAPIKey  string `env:"EMAIL_PROVIDER_API_KEY"`
	SMSProviderBaseURL   string `env:"SMS_PROVIDER_BASE_URL"`
	SMSProviderAPIKey    string `env:"SMS_PROVIDER_API_KEY"`
	PushProviderBaseURL  string `env:"PUSH_PROVIDER_BASE_URL"`
	PushProviderAPIKey   string `env:"PUSH_PROVIDER_API_KEY"`

	ProviderTimeoutMS int `env:"PROVIDER_TIMEOUT_MS,default=5000"`
	// Comma-separated; empty falls back to defaultRetryableStatusCodes.
	ProviderRetryableStatuses string `env:"PROVIDER_RETRYABLE_STATUS_CODES"`
	ProviderCallbackToken     string `env:"PROVIDER_CALLBACK_TOKEN"`

	CacheBackend    string `env:"CACHE_BACKEND,default=none"`
	CacheTTLSeconds int    `env:"CACHE_TTL_SECONDS,default=300"`
	CacheLRUSize    int    `env:"CACHE_LRU_SIZE,default=2048"`
	MemcacheAddr    string `env:"MEMCACHE_ADDR,default=localhost:11211"`

	// Comma-separated; empty means all channels.
	WorkerChannels       string `env:"WORKER_CHANNELS"`
	WorkerConcurrency    int    `env:"WORKER_CONCURRENCY,default=4"`
	WorkerBatchSize      int    `env:"WORKER_BATCH_SIZE,default=20"`
	WorkerPollIntervalMS int    `env:"WORKER_POLL_INTERVAL_MS,default=500"`
	WorkerLeaseSeconds   int    `env:"WORKER_LEASE_SECONDS,default=30"`

	RetryMaxAttempts int     `env:"RETRY_MAX_ATTEMPTS,default=5"`
	RetryBaseDelayMS int     `env:"RETRY_BASE_DELAY_MS,default=2000"`
	RetryMaxDelayMS  int     `env:"RETRY_MAX_DELAY_MS,default=300000"`
	RetryJitterRatio float64 `env:"RETRY_JITTER_RATIO,default=0.2"`

	RedisURL        string `env:"REDIS_URL"`
	RateLimitPerSec int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	// Comma-separated channel=limit pairs, e.g. "sms=10,email=200".
	RateLimitOverrides string `env:"RATE_LIMIT_OVERRIDES"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// ProviderTimeout returns the per-attempt provider deadline.
func (c *Config) ProviderTimeout() time.Duration {
	ms := c.ProviderTimeoutMS
	if ms < 1 {
		ms = 5000
	}
	return time.Duration(ms) * time.Millisecond
}

var defaultRetryableStatusCodes = []int{408, 429, 500, 502, 503, 504}

// RetryableStatusCodes parses the comma-separated retryable status set.
func (c *Config) RetryableStatusCodes() ([]int, error) {
	raw := strings.TrimSpace(c.ProviderRetryableStatuses)
	if raw == "" {
		return append([]int(nil), defaultRetryableStatusCodes...), nil
	}

	parts := strings.Split(raw, ",")
	codes := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid retryable status code %q: %w", part, err)
		}
		codes = append(codes, code)
	}

	return codes, nil
}

// RateLimitChannelOverrides parses per-channel rate limit overrides. Channels
// not listed fall back to RateLimitPerSec.
func (c *Config) RateLimitChannelOverrides() (map[string]int, error) {
	raw := strings.TrimSpace(c.RateLimitOverrides)
	if raw == "" {
		return nil, nil
	}

	overrides := make(map[string]int)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		channel, value, ok := strings.Cut(part, "=")
		channel = strings.ToLower(strings.TrimSpace(channel))
		if !ok || channel == "" {
			return nil, fmt.Errorf("invalid rate limit override %q: want channel=limit", part)
		}
		limit, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || limit < 1 {
			return nil, fmt.Errorf("invalid rate limit override %q: limit must be a positive integer", part)
		}
		overrides[channel] = limit
	}
	return overrides, nil
}

// Channels parses the worker channel restriction. Empty means all channels.
func (c *Config) Channels() ([]domain.Channel, error) {
	raw := strings.TrimSpace(c.WorkerChannels)
	if raw == "" {
		return []domain.Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush}, nil
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return domain.ParseChannels(values)
}

func (c *Config) WorkerPollInterval() time.Duration {
	ms := c.WorkerPollIntervalMS
	if ms < 1 {
		ms = 500
	}
	return time.Duration(ms) * time.Millisecond
}

func (c *Config) WorkerLease() time.Duration {
	s := c.WorkerLeaseSeconds
	if s < 1 {
		s = 30
	}
	return time.Duration(s) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	s := c.CacheTTLSeconds
	if s < 0 {
		s = 0
	}
	return time.Duration(s) * time.Second
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMS) * time.Millisecond
}

// ProviderEndpoint returns the configured base URL and API key for a channel.
func (c *Config) ProviderEndpoint(channel domain.Channel) (baseURL, apiKey string) {
	switch channel {
	case domain.ChannelEmail:
		return c.EmailProviderBaseURL, c.EmailProviderAPIKey
	case domain.ChannelSMS:
		return c.SMSProviderBaseURL, c.SMSProviderAPIKey
	case domain.ChannelPush:
		return c.PushProviderBaseURL, c.PushProviderAPIKey
	}
	return "", ""
}
