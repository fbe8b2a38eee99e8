package vlmrun

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// RequestHook allows callers to inspect or mutate requests before they are sent.
type RequestHook func(*http.Request)

// ResponseHook allows callers to inspect responses (raw bytes included).
type ResponseHook func(*http.Response, []byte)

// Config holds SDK configuration. It is treated as immutable once a client is built.
type Config struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	CacheDir string

	// MaxAttempts is the total number of transport attempts per call, first try included.
	MaxAttempts int
	// RetryMaxElapsed bounds the whole retry sequence; zero means no bound.
	RetryMaxElapsed time.Duration

	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
	RetryJitter          float64

	Debug bool

	ExtraHeaders http.Header
	ProxyURL     *url.URL

	RequestIDHeader  string
	DefaultRequestID string
	AutoRequestID    bool

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	Logger        *zerolog.Logger
	RedactHeaders []string

	BeforeRequest []RequestHook
	AfterResponse []ResponseHook

	// SkipHealthCheck disables the connectivity probe run by NewClient.
	SkipHealthCheck bool
}

// String renders the config with the API key redacted.
func (c Config) String() string {
	return fmt.Sprintf("Config{BaseURL:%s APIKey:%s Timeout:%s MaxAttempts:%d Debug:%t}",
		c.BaseURL, redactSecret(c.APIKey), c.Timeout, c.MaxAttempts, c.Debug)
}

// ConfigParams provides optional overrides for building a Config.
type ConfigParams struct {
	APIKey          string
	BaseURL         string
	Timeout         time.Duration
	TimeoutSeconds  float64
	MaxAttempts     int
	RetryMaxElapsed time.Duration
	CacheDir        string
	Debug           *bool
	ExtraHeaders    http.Header
	ProxyURL        string
	RequestID       string
	AutoRequestID   *bool
	RequestIDHeader string

	// RetryInitialInterval overrides the first backoff; a pointer to zero
	// retries without waiting.
	RetryInitialInterval *time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
	RetryJitter          *float64

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	Logger        *zerolog.Logger
	RedactHeaders []string

	BeforeRequest []RequestHook
	AfterResponse []ResponseHook

	SkipHealthCheck bool
}

const (
	DefaultBaseURL = "https://api.vlm.run/v1"

	defaultTimeout         = 120 * time.Second
	defaultMaxAttempts     = 5
	defaultRetryInitial    = time.Second
	defaultRetryMax        = 10 * time.Second
	defaultRetryAfterLimit = time.Minute
	defaultRetryMultiplier = 2.0
	defaultRetryJitter     = 0.2
	defaultMaxIdleConns    = 100
	defaultMaxIdlePerHost  = 10
	defaultIdleConnTimeout = 90 * time.Second
	defaultRequestIDHeader = "X-Request-ID"
)

// envConfig mirrors the VLMRUN_* environment surface. Values stay textual so
// that durations accept both "90s" and bare numbers.
type envConfig struct {
	APIKey              string `env:"VLMRUN_API_KEY"`
	BaseURL             string `env:"VLMRUN_BASE_URL"`
	Timeout             string `env:"VLMRUN_TIMEOUT"`
	MaxAttempts         string `env:"VLMRUN_MAX_ATTEMPTS"`
	Debug               string `env:"VLMRUN_DEBUG"`
	Proxy               string `env:"VLMRUN_PROXY"`
	ExtraHeaders        string `env:"VLMRUN_EXTRA_HEADERS"`
	RequestID           string `env:"VLMRUN_REQUEST_ID"`
	AutoRequestID       string `env:"VLMRUN_AUTO_REQUEST_ID"`
	RequestIDHeader     string `env:"VLMRUN_REQUEST_ID_HEADER"`
	RetryInitialMS      string `env:"VLMRUN_RETRY_INITIAL_MS"`
	RetryMaxMS          string `env:"VLMRUN_RETRY_MAX_MS"`
	RetryMultiplier     string `env:"VLMRUN_RETRY_MULTIPLIER"`
	RetryJitter         string `env:"VLMRUN_RETRY_JITTER"`
	CacheDir            string `env:"VLMRUN_CACHE_DIR"`
	MaxIdleConns        string `env:"VLMRUN_MAX_IDLE_CONNS"`
	MaxIdleConnsPerHost string `env:"VLMRUN_MAX_IDLE_CONNS_PER_HOST"`
	IdleConnTimeout     string `env:"VLMRUN_IDLE_CONN_TIMEOUT"`
}

// LoadConfig builds a Config from parameters or environment variables.
// Environment fallbacks:
//
//	VLMRUN_API_KEY, VLMRUN_BASE_URL, VLMRUN_TIMEOUT, VLMRUN_MAX_ATTEMPTS,
//	VLMRUN_DEBUG, VLMRUN_PROXY, VLMRUN_EXTRA_HEADERS, VLMRUN_REQUEST_ID,
//	VLMRUN_AUTO_REQUEST_ID, VLMRUN_REQUEST_ID_HEADER, VLMRUN_RETRY_INITIAL_MS,
//	VLMRUN_RETRY_MAX_MS, VLMRUN_RETRY_MULTIPLIER, VLMRUN_RETRY_JITTER,
//	VLMRUN_CACHE_DIR, VLMRUN_MAX_IDLE_CONNS, VLMRUN_MAX_IDLE_CONNS_PER_HOST,
//	VLMRUN_IDLE_CONN_TIMEOUT.
func LoadConfig(apiKey, baseURL string, timeoutSeconds float64, maxAttempts int) (Config, error) {
	return LoadConfigWithParams(ConfigParams{
		APIKey:         apiKey,
		BaseURL:        baseURL,
		TimeoutSeconds: timeoutSeconds,
		MaxAttempts:    maxAttempts,
	})
}

// LoadConfigWithParams layers explicit params over environment variables over defaults.
func LoadConfigWithParams(params ConfigParams) (Config, error) {
	var ev envConfig
	if err := env.Parse(&ev); err != nil {
		return Config{}, configError(err)
	}

	var errs *multierror.Error
	collect := func(err error) {
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	cfg := Config{
		APIKey:               firstNonEmpty(params.APIKey, ev.APIKey),
		BaseURL:              strings.TrimSuffix(firstNonEmpty(params.BaseURL, ev.BaseURL, DefaultBaseURL), "/"),
		CacheDir:             firstNonEmpty(params.CacheDir, ev.CacheDir, defaultCacheDir()),
		MaxAttempts:          defaultMaxAttempts,
		RetryMaxElapsed:      params.RetryMaxElapsed,
		ExtraHeaders:         cloneHeaders(params.ExtraHeaders),
		RequestIDHeader:      firstNonEmpty(params.RequestIDHeader, ev.RequestIDHeader, defaultRequestIDHeader),
		DefaultRequestID:     firstNonEmpty(params.RequestID, ev.RequestID),
		RetryInitialInterval: defaultRetryInitial,
		RetryMaxInterval:     defaultRetryMax,
		RetryMultiplier:      defaultRetryMultiplier,
		RetryJitter:          defaultRetryJitter,
		MaxIdleConns:         defaultMaxIdleConns,
		MaxIdleConnsPerHost:  defaultMaxIdlePerHost,
		IdleConnTimeout:      defaultIdleConnTimeout,
		Logger:               params.Logger,
		RedactHeaders:        params.RedactHeaders,
		BeforeRequest:        params.BeforeRequest,
		AfterResponse:        params.AfterResponse,
		AutoRequestID:        true,
		SkipHealthCheck:      params.SkipHealthCheck,
	}
	if cfg.RedactHeaders == nil {
		cfg.RedactHeaders = []string{"Authorization", "X-API-Key"}
	}

	if n, ok, err := parseEnvInt("VLMRUN_MAX_ATTEMPTS", ev.MaxAttempts); err != nil {
		collect(err)
	} else if ok {
		cfg.MaxAttempts = n
	}
	if params.MaxAttempts != 0 {
		cfg.MaxAttempts = params.MaxAttempts
	}

	if n, ok, err := parseEnvInt("VLMRUN_MAX_IDLE_CONNS", ev.MaxIdleConns); err != nil {
		collect(err)
	} else if ok {
		cfg.MaxIdleConns = n
	}
	if params.MaxIdleConns != 0 {
		cfg.MaxIdleConns = params.MaxIdleConns
	}
	if n, ok, err := parseEnvInt("VLMRUN_MAX_IDLE_CONNS_PER_HOST", ev.MaxIdleConnsPerHost); err != nil {
		collect(err)
	} else if ok {
		cfg.MaxIdleConnsPerHost = n
	}
	if params.MaxIdleConnsPerHost != 0 {
		cfg.MaxIdleConnsPerHost = params.MaxIdleConnsPerHost
	}

	if d, err := parseEnvDuration("VLMRUN_IDLE_CONN_TIMEOUT", ev.IdleConnTimeout, time.Second); err != nil {
		collect(err)
	} else {
		cfg.IdleConnTimeout = firstNonZeroDuration(params.IdleConnTimeout, d, defaultIdleConnTimeout)
	}

	if params.Debug != nil {
		cfg.Debug = *params.Debug
	} else if ev.Debug != "" {
		val, err := strconv.ParseBool(ev.Debug)
		if err != nil {
			collect(fmt.Errorf("parse VLMRUN_DEBUG: %w", err))
		}
		cfg.Debug = val
	}

	switch {
	case params.Timeout != 0:
		cfg.Timeout = params.Timeout
	case params.TimeoutSeconds != 0:
		cfg.Timeout = time.Duration(params.TimeoutSeconds * float64(time.Second))
	default:
		d, err := parseEnvDuration("VLMRUN_TIMEOUT", ev.Timeout, time.Second)
		collect(err)
		cfg.Timeout = d
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	if ev.ExtraHeaders != "" {
		envHeaders, err := parseHeadersEnv(ev.ExtraHeaders)
		collect(err)
		for k, vals := range envHeaders {
			for _, v := range vals {
				cfg.ExtraHeaders.Add(k, v)
			}
		}
	}

	if proxyURL := firstNonEmpty(params.ProxyURL, ev.Proxy); proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			collect(fmt.Errorf("parse proxy url: %w", err))
		} else {
			cfg.ProxyURL = parsed
		}
	}

	if params.AutoRequestID != nil {
		cfg.AutoRequestID = *params.AutoRequestID
	} else if ev.AutoRequestID != "" {
		val, err := strconv.ParseBool(ev.AutoRequestID)
		if err != nil {
			collect(fmt.Errorf("parse VLMRUN_AUTO_REQUEST_ID: %w", err))
		}
		cfg.AutoRequestID = val
	}

	if val, err := parseEnvDuration("VLMRUN_RETRY_INITIAL_MS", ev.RetryInitialMS, time.Millisecond); err != nil {
		collect(err)
	} else if ev.RetryInitialMS != "" {
		cfg.RetryInitialInterval = val
	}
	if params.RetryInitialInterval != nil {
		cfg.RetryInitialInterval = *params.RetryInitialInterval
	}
	if val, err := parseEnvDuration("VLMRUN_RETRY_MAX_MS", ev.RetryMaxMS, time.Millisecond); err != nil {
		collect(err)
	} else if val > 0 {
		cfg.RetryMaxInterval = val
	}
	if params.RetryMaxInterval != 0 {
		cfg.RetryMaxInterval = params.RetryMaxInterval
	}
	if ev.RetryMultiplier != "" {
		val, err := strconv.ParseFloat(ev.RetryMultiplier, 64)
		if err != nil {
			collect(fmt.Errorf("parse VLMRUN_RETRY_MULTIPLIER: %w", err))
		}
		cfg.RetryMultiplier = val
	}
	if params.RetryMultiplier != 0 {
		cfg.RetryMultiplier = params.RetryMultiplier
	}
	if ev.RetryJitter != "" {
		val, err := strconv.ParseFloat(ev.RetryJitter, 64)
		if err != nil {
			collect(fmt.Errorf("parse VLMRUN_RETRY_JITTER: %w", err))
		}
		cfg.RetryJitter = val
	}
	if params.RetryJitter != nil {
		cfg.RetryJitter = *params.RetryJitter
	}

	collect(cfg.Validate())

	if err := errs.ErrorOrNil(); err != nil {
		return Config{}, configError(err)
	}
	return cfg, nil
}

// Validate checks the invariants the executor relies on.
func (c Config) Validate() error {
	var errs *multierror.Error
	if c.APIKey == "" {
		errs = multierror.Append(errs, ErrMissingAPIKey)
	}
	if err := validateBaseURL(c.BaseURL); err != nil {
		errs = multierror.Append(errs, err)
	}
	if c.MaxAttempts < 1 {
		errs = multierror.Append(errs, fmt.Errorf("max attempts must be >= 1"))
	}
	if c.Timeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("timeout must be non-negative"))
	}
	if c.RetryMaxElapsed < 0 {
		errs = multierror.Append(errs, fmt.Errorf("retry max elapsed must be non-negative"))
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConnsPerHost < 0 {
		errs = multierror.Append(errs, fmt.Errorf("idle connection limits must be >= 0"))
	}
	if c.IdleConnTimeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("idle connection timeout must be non-negative"))
	}
	if c.RetryInitialInterval < 0 || c.RetryMaxInterval < 0 {
		errs = multierror.Append(errs, fmt.Errorf("retry intervals must be non-negative"))
	}
	if c.RetryMultiplier < 1 {
		errs = multierror.Append(errs, fmt.Errorf("retry multiplier must be >= 1"))
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		errs = multierror.Append(errs, fmt.Errorf("retry jitter must be between 0 and 1"))
	}
	return errs.ErrorOrNil()
}

func configError(err error) error {
	if e, ok := err.(*multierror.Error); ok && len(e.Errors) == 1 {
		if single, ok := e.Errors[0].(*Error); ok {
			return single
		}
	}
	return &Error{
		Kind:       KindConfiguration,
		Message:    strings.TrimSpace(err.Error()),
		Suggestion: defaultSuggestions[KindConfiguration],
		Err:        err,
	}
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base url must be an absolute http(s) url, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("base url %q has no host", raw)
	}
	return nil
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "vlmrun")
	}
	return filepath.Join(home, ".vlmrun", "cache")
}

func redactSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "[redacted]"
	}
	return s[:4] + "…[redacted]"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZeroDuration(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func parseEnvInt(name, val string) (int, bool, error) {
	if val == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, true, fmt.Errorf("parse %s: %w", name, err)
	}
	return parsed, true, nil
}

// parseEnvDuration accepts Go duration syntax or a bare number in numericUnit.
func parseEnvDuration(name, val string, numericUnit time.Duration) (time.Duration, error) {
	if val == "" {
		return 0, nil
	}
	if duration, err := time.ParseDuration(val); err == nil {
		return duration, nil
	}
	n, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return time.Duration(n * float64(numericUnit)), nil
}

func parseHeadersEnv(val string) (http.Header, error) {
	headers := http.Header{}
	if val == "" {
		return headers, nil
	}
	for _, entry := range strings.FieldsFunc(val, func(r rune) bool { return r == ';' || r == ',' || r == '\n' }) {
		if entry == "" {
			continue
		}
		sep := ":"
		if strings.Contains(entry, "=") {
			sep = "="
		}
		parts := strings.SplitN(entry, sep, 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid header entry %q", entry)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			return nil, fmt.Errorf("invalid header entry %q", entry)
		}
		headers.Add(key, value)
	}
	return headers, nil
}

func cloneHeaders(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	clone := http.Header{}
	for k, vals := range h {
		clone[k] = append([]string(nil), vals...)
	}
	return clone
}
