// Package config loads service configuration from the environment, an
// optional .env file and an optional config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/room-calendar-sync/backend/internal/storage/models"
)

// Feed URL variables. ICAL_URL_ is the older name and is still accepted.
const (
	FeedURLPrefix       = "FEED_URL_"
	LegacyFeedURLPrefix = "ICAL_URL_"
)

// Config holds all configuration values.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Feeds are ordered; RoomID is the 1-based position.
	Feeds []models.FeedSource

	StoreEndpoint string
	StoreKey      string

	SyncInterval      time.Duration
	FetchTimeout      time.Duration
	FetchConcurrency  int
	RecurrenceHorizon time.Duration

	ExportRatePerMin int

	BookingDefaults models.BookingDefaults
}

// Load reads .env files (missing files are ignored), then the environment and
// config.yaml through viper.
func Load(envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	defaults := models.DefaultBookingDefaults()
	v.SetDefault("PORT", "3000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_ENDPOINT", "sqlite://./data/bookings.db")
	v.SetDefault("STORE_KEY", "")
	v.SetDefault("SYNC_INTERVAL", "60m")
	v.SetDefault("FETCH_TIMEOUT", "30s")
	v.SetDefault("FETCH_CONCURRENCY", 4)
	v.SetDefault("RECURRENCE_HORIZON", "8760h")
	v.SetDefault("EXPORT_RATE_PER_MIN", 60)
	v.SetDefault("BOOKING_OCCUPANTS", defaults.OccupantCount)
	v.SetDefault("BOOKING_STATUS", defaults.Status)
	v.SetDefault("BOOKING_MEAL_PLAN", defaults.MealPlan)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	urls := FeedURLsFromEnviron(os.Environ())
	if len(urls) == 0 {
		urls = v.GetStringSlice("feeds")
	}

	cfg := &Config{
		Port:              v.GetString("PORT"),
		Env:               v.GetString("ENV"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		Feeds:             FeedSources(urls),
		StoreEndpoint:     v.GetString("STORE_ENDPOINT"),
		StoreKey:          v.GetString("STORE_KEY"),
		SyncInterval:      v.GetDuration("SYNC_INTERVAL"),
		FetchTimeout:      v.GetDuration("FETCH_TIMEOUT"),
		FetchConcurrency:  v.GetInt("FETCH_CONCURRENCY"),
		RecurrenceHorizon: v.GetDuration("RECURRENCE_HORIZON"),
		ExportRatePerMin:  v.GetInt("EXPORT_RATE_PER_MIN"),
		BookingDefaults: models.BookingDefaults{
			OccupantCount: v.GetInt("BOOKING_OCCUPANTS"),
			Status:        v.GetString("BOOKING_STATUS"),
			MealPlan:      v.GetString("BOOKING_MEAL_PLAN"),
		},
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Normalize replaces zero or out-of-range values with defaults.
func (c *Config) Normalize() {
	if c.Port == "" {
		c.Port = "3000"
	}
	c.Port = strings.TrimPrefix(c.Port, ":")
	if c.SyncInterval < time.Minute {
		c.SyncInterval = 60 * time.Minute
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.FetchConcurrency < 1 {
		c.FetchConcurrency = 1
	}
	if c.RecurrenceHorizon <= 0 {
		c.RecurrenceHorizon = 365 * 24 * time.Hour
	}
	if c.ExportRatePerMin <= 0 {
		c.ExportRatePerMin = 60
	}
	if c.BookingDefaults.OccupantCount <= 0 {
		c.BookingDefaults.OccupantCount = 2
	}
	if c.BookingDefaults.Status == "" {
		c.BookingDefaults.Status = models.BookingStatusBooking
	}
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	if c.StoreEndpoint == "" {
		return errors.New("STORE_ENDPOINT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT %q is not a number", c.Port)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

type feedVar struct {
	index  int
	suffix string
	legacy bool
	url    string
}

// FeedURLsFromEnviron extracts feed URLs from KEY=VALUE pairs. Keys are
// ordered by their numeric suffix (FEED_URL_1, FEED_URL_2, ..., FEED_URL_10);
// non-numeric suffixes sort after numeric ones. Empty values are dropped.
// When FEED_URL_n and ICAL_URL_n are both set, only FEED_URL_n is used.
func FeedURLsFromEnviron(environ []string) []string {
	var vars []feedVar
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		var fv feedVar
		switch {
		case strings.HasPrefix(key, FeedURLPrefix):
			fv.suffix = strings.TrimPrefix(key, FeedURLPrefix)
		case strings.HasPrefix(key, LegacyFeedURLPrefix):
			fv.suffix = strings.TrimPrefix(key, LegacyFeedURLPrefix)
			fv.legacy = true
		default:
			continue
		}
		fv.url = value
		fv.index = -1
		if n, err := strconv.Atoi(fv.suffix); err == nil && n >= 0 {
			fv.index = n
		}
		vars = append(vars, fv)
	}

	sort.SliceStable(vars, func(i, j int) bool {
		a, b := vars[i], vars[j]
		if (a.index < 0) != (b.index < 0) {
			return a.index >= 0
		}
		if a.index != b.index {
			return a.index < b.index
		}
		if a.suffix != b.suffix {
			return a.suffix < b.suffix
		}
		return !a.legacy && b.legacy
	})

	urls := make([]string, 0, len(vars))
	for i, fv := range vars {
		if i > 0 && sameSlot(vars[i-1], fv) {
			continue
		}
		urls = append(urls, fv.url)
	}
	return urls
}

// sameSlot reports whether two variables name the same feed position.
func sameSlot(a, b feedVar) bool {
	if a.index >= 0 || b.index >= 0 {
		return a.index == b.index
	}
	return a.suffix == b.suffix
}

// FeedSources assigns room ids to URLs by 1-based position.
func FeedSources(urls []string) []models.FeedSource {
	feeds := make([]models.FeedSource, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		feeds = append(feeds, models.FeedSource{RoomID: len(feeds) + 1, URL: u})
	}
	return feeds
}
