// Package config reads daemon settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultDriver      = "sqlite"
	DefaultDSN         = "checkuser.db"
	DefaultHTTPAddr    = ":8080"
	DefaultMetricsAddr = ":9090"
	DefaultWikiID      = "wiki"
	DefaultPageSize    = 50
	DefaultMaxPageSize = 500
	DefaultRateLimit   = 60
	DefaultTokenTTL    = 24 * time.Hour
)

type Config struct {
	Driver      string
	DSN         string
	HTTPAddr    string
	MetricsAddr string

	// Secret keys token encryption and signing.
	Secret string
	WikiID string

	// SiteProxies lists the addresses and CIDR ranges of site-operated proxies.
	SiteProxies        []string
	XFFAcceptPrivate   bool
	MaxHops            int
	PageSize           int
	MaxPageSize        int
	TokenTTL           time.Duration
	APIKeys            map[string]struct{}
	Reviewers          map[string]struct{}
	RateLimitPerMinute int
	IndexHints         bool
	InitSchema         bool
	// SeedFile names a JSON Lines event fixture loaded at start.
	SeedFile           string
}

// Load reads the CHECKUSER_* variables, applying defaults.
func Load() Config {
	return Config{
		Driver:             getString("CHECKUSER_DRIVER", DefaultDriver),
		DSN:                getString("CHECKUSER_DSN", DefaultDSN),
		HTTPAddr:           getString("CHECKUSER_HTTP_ADDR", DefaultHTTPAddr),
		MetricsAddr:        getString("CHECKUSER_METRICS_ADDR", DefaultMetricsAddr),
		Secret:             os.Getenv("CHECKUSER_SECRET"),
		WikiID:             getString("CHECKUSER_WIKI_ID", DefaultWikiID),
		SiteProxies:        splitList(os.Getenv("CHECKUSER_SITE_PROXIES")),
		XFFAcceptPrivate:   getBool("CHECKUSER_XFF_ACCEPT_PRIVATE", false),
		MaxHops:            getInt("CHECKUSER_MAX_HOPS", 32),
		PageSize:           getInt("CHECKUSER_PAGE_SIZE", DefaultPageSize),
		MaxPageSize:        getInt("CHECKUSER_MAX_PAGE_SIZE", DefaultMaxPageSize),
		TokenTTL:           getDuration("CHECKUSER_TOKEN_TTL", DefaultTokenTTL),
		APIKeys:            toSet(splitList(os.Getenv("CHECKUSER_API_KEYS"))),
		Reviewers:          toSet(splitList(os.Getenv("CHECKUSER_REVIEWERS"))),
		RateLimitPerMinute: getInt("CHECKUSER_RATE_LIMIT", DefaultRateLimit),
		IndexHints:         getBool("CHECKUSER_INDEX_HINTS", false),
		InitSchema:         getBool("CHECKUSER_INIT_SCHEMA", false),
		SeedFile:           getString("CHECKUSER_SEED_FILE", ""),
	}
}

// Validate reports every setting that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.Secret == "" {
		errs = append(errs, errors.New("CHECKUSER_SECRET is required"))
	}
	if c.DSN == "" {
		errs = append(errs, errors.New("CHECKUSER_DSN is required"))
	}
	if c.WikiID == "" {
		errs = append(errs, errors.New("CHECKUSER_WIKI_ID must not be empty"))
	}
	switch c.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("CHECKUSER_DRIVER %q is not supported", c.Driver))
	}
	if c.PageSize <= 0 {
		errs = append(errs, errors.New("CHECKUSER_PAGE_SIZE must be positive"))
	}
	if c.MaxPageSize < c.PageSize {
		errs = append(errs, errors.New("CHECKUSER_MAX_PAGE_SIZE must be at least CHECKUSER_PAGE_SIZE"))
	}
	if c.MaxHops <= 0 {
		errs = append(errs, errors.New("CHECKUSER_MAX_HOPS must be positive"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("CHECKUSER_TOKEN_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func splitList(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, s := range items {
		m[s] = struct{}{}
	}
	return m
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
