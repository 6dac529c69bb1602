// Package config loads process configuration from an optional file and
// BACKOFFICE_* environment variables. Environment wins over the file.
//
// The schedule window (weekStart, weekCount) is NOT process configuration:
// it is a stored document, see calendar.Store.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/warp/backoffice/generic"
)

const EnvPrefix = "BACKOFFICE"

type Config struct {
	App      AppConfig
	Log      LogConfig
	HTTP     HTTPConfig
	DB       DBConfig
	Venue    VenueConfig
	Dispatch DispatchConfig
	CORS     CORSConfig
	Seed     SeedConfig
	Store    StoreConfig
}

type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

type LogConfig struct {
	Level string
}

type HTTPConfig struct {
	Host string
	Port int
}

// Addr returns host:port.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DBConfig struct {
	// Path is the SQLite file; ":memory:" keeps everything in memory.
	Path string
}

type VenueConfig struct {
	Timezone string
}

// Location resolves Timezone. Validate has already checked it.
func (c VenueConfig) Location() *time.Location {
	loc, err := generic.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type DispatchConfig struct {
	BaseURL string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type SeedConfig struct {
	File string
}

type StoreConfig struct {
	// AtomicApproval commits requisition status and order in one
	// transaction. False selects the version-checked compensating path.
	AtomicApproval bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.name", "backoffice")
	v.SetDefault("log.level", "info")
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("db.path", "backoffice.db")
	v.SetDefault("venue.timezone", "Europe/Rome")
	v.SetDefault("dispatch.base_url", "https://wa.me/")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("seed.file", "")
	v.SetDefault("store.atomic_approval", true)
}

// Load reads path (if non-empty), then the environment. A missing file is
// an error only when path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", generic.ErrInvalidConfig, path, err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Env:  v.GetString("app.env"),
			Name: v.GetString("app.name"),
		},
		Log:  LogConfig{Level: v.GetString("log.level")},
		HTTP: HTTPConfig{Host: v.GetString("http.host"), Port: v.GetInt("http.port")},
		DB:   DBConfig{Path: v.GetString("db.path")},
		Venue: VenueConfig{
			Timezone: v.GetString("venue.timezone"),
		},
		Dispatch: DispatchConfig{BaseURL: v.GetString("dispatch.base_url")},
		CORS:     CORSConfig{AllowedOrigins: stringList(v.Get("cors.allowed_origins"))},
		Seed:     SeedConfig{File: v.GetString("seed.file")},
		Store:    StoreConfig{AtomicApproval: v.GetBool("store.atomic_approval")},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stringList accepts a list from a file or a comma-separated env value.
func stringList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case []string:
		parts = val
	case []any:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	case string:
		parts = strings.Split(val, ",")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("%w: http.port %d out of range", generic.ErrInvalidConfig, c.HTTP.Port)
	}
	if strings.TrimSpace(c.DB.Path) == "" {
		return fmt.Errorf("%w: db.path is empty", generic.ErrInvalidConfig)
	}
	if _, err := generic.LoadLocation(c.Venue.Timezone); err != nil {
		return err
	}
	if c.Dispatch.BaseURL != "" {
		u, err := url.Parse(c.Dispatch.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: dispatch.base_url %q is not an absolute URL", generic.ErrInvalidConfig, c.Dispatch.BaseURL)
		}
	}
	return nil
}

func (c *Config) IsDevelopment() bool { return c.App.Env == "development" }
