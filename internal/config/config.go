// Package config loads process configuration from the environment. A .env
// file in the working directory, if present, is read first; real environment
// variables take precedence over it.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration of the server binary.
type Config struct {
	ListenAddr  string   // HTTP listen address for API, websocket and metrics
	DatabaseURL string   // Postgres DSN
	RedisAddr   string   // Redis address for presence, rate limits and the profile cache
	NATSURL     string   // NATS server URL for cross-node delivery
	JWTSecret   string   // HS256 key for session tokens
	CORSOrigins []string // allowed browser origins
	ServerName  string   // node identifier recorded in presence

	WorkerPoolSize int           // websocket read workers
	MaxConnections int           // websocket connection cap
	ReadTimeout    time.Duration // websocket frame read timeout
	WriteTimeout   time.Duration // websocket frame write timeout

	ChatLanes     int  // ordered chat persistence lanes
	SuggestLimit  int  // cap on each suggestion list
	AdminOverride bool // admins may respond and schedule on behalf of participants
	RunMigrations bool // apply embedded migrations at startup
}

// Default returns a Config with development defaults. JWTSecret and
// DatabaseURL have no default.
func Default() Config {
	name, _ := os.Hostname()
	if name == "" {
		name = "skillswap-1"
	}
	return Config{
		ListenAddr:     ":8080",
		RedisAddr:      "localhost:6379",
		NATSURL:        "nats://localhost:4222",
		CORSOrigins:    []string{"http://localhost:5173"},
		ServerName:     name,
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		ChatLanes:      32,
		SuggestLimit:   10,
		AdminOverride:  false,
		RunMigrations:  true,
	}
}

// Load reads .env (ignored when missing) and applies environment overrides on
// top of Default. Malformed numeric or duration values are logged and the
// default is kept.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env not loaded: %v", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv applies overrides read through getenv on top of Default.
func FromEnv(getenv func(string) string) Config {
	c := Default()

	setString(getenv, "LISTEN_ADDR", &c.ListenAddr)
	setString(getenv, "DATABASE_URL", &c.DatabaseURL)
	setString(getenv, "REDIS_ADDR", &c.RedisAddr)
	setString(getenv, "NATS_URL", &c.NATSURL)
	setString(getenv, "JWT_SECRET", &c.JWTSecret)
	setString(getenv, "SERVER_NAME", &c.ServerName)
	if v := getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}

	setPositiveInt(getenv, "WORKER_POOL_SIZE", &c.WorkerPoolSize)
	setPositiveInt(getenv, "MAX_CONNECTIONS", &c.MaxConnections)
	setDuration(getenv, "READ_TIMEOUT", &c.ReadTimeout)
	setDuration(getenv, "WRITE_TIMEOUT", &c.WriteTimeout)

	setPositiveInt(getenv, "CHAT_LANES", &c.ChatLanes)
	setPositiveInt(getenv, "SUGGEST_LIMIT", &c.SuggestLimit)
	setBool(getenv, "MATCH_ADMIN_OVERRIDE", &c.AdminOverride)
	setBool(getenv, "RUN_MIGRATIONS", &c.RunMigrations)

	return c
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("config: JWT_SECRET is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("config: DATABASE_URL is required"))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("config: LISTEN_ADDR must not be empty"))
	}
	return errors.Join(errs...)
}

func setString(getenv func(string) string, key string, dst *string) {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		*dst = v
	}
}

func setPositiveInt(getenv func(string) string, key string, dst *int) {
	v := getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring %s=%q: want a positive integer", key, v)
		return
	}
	*dst = n
}

func setDuration(getenv func(string) string, key string, dst *time.Duration) {
	v := getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] ignoring %s=%q: want a positive duration", key, v)
		return
	}
	*dst = d
}

func setBool(getenv func(string) string, key string, dst *bool) {
	v := getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] ignoring %s=%q: want true or false", key, v)
		return
	}
	*dst = b
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LogSummary prints the effective configuration without secrets.
func (c Config) LogSummary() {
	log.Printf("  listen_addr:     %s", c.ListenAddr)
	log.Printf("  database:        %s", redactDSN(c.DatabaseURL))
	log.Printf("  redis_addr:      %s", c.RedisAddr)
	log.Printf("  nats_url:        %s", c.NATSURL)
	log.Printf("  server_name:     %s", c.ServerName)
	log.Printf("  cors_origins:    %s", strings.Join(c.CORSOrigins, ","))
	log.Printf("  worker_pool:     %d", c.WorkerPoolSize)
	log.Printf("  max_connections: %d", c.MaxConnections)
	log.Printf("  read_timeout:    %s", c.ReadTimeout)
	log.Printf("  write_timeout:   %s", c.WriteTimeout)
	log.Printf("  chat_lanes:      %d", c.ChatLanes)
	log.Printf("  suggest_limit:   %d", c.SuggestLimit)
	log.Printf("  admin_override:  %v", c.AdminOverride)
	log.Printf("  run_migrations:  %v", c.RunMigrations)
}

// redactDSN hides the password of a postgres URL.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || scheme+3 > at {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		creds = creds[:i] + ":***"
	}
	return fmt.Sprintf("%s%s%s", dsn[:scheme+3], creds, dsn[at:])
}
