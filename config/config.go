package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"prism-board/persistence"
	"prism-board/storage"
)

// FileEnv names the variable holding the optional YAML config path.
const FileEnv = "PRISM_BOARD_CONFIG"

var ErrInvalid = errors.New("invalid config")

type Storage struct {
	Backend          string        `yaml:"backend"`
	ConnectionString string        `yaml:"connection_string"`
	BoardsTable      string        `yaml:"boards_table"`
	EventsQueue      string        `yaml:"events_queue"`
	DatastoreProject string        `yaml:"datastore_project"`
	Redis            string        `yaml:"redis"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
}

type Auth struct {
	Domain       string `yaml:"domain"`
	Audience     string `yaml:"audience"`
	SharedSecret string `yaml:"shared_secret"`
}

type Config struct {
	Storage         Storage            `yaml:"storage"`
	Persistence     persistence.Config `yaml:"persistence"`
	Auth            Auth               `yaml:"auth"`
	CheckInvariants bool               `yaml:"check_invariants"`
	ListenAddr      string             `yaml:"listen_addr"`
	Debug           bool               `yaml:"debug"`
	LogFormat       string             `yaml:"log_format"`
}

func Default() Config {
	return Config{
		Storage: Storage{
			Backend:     storage.BackendTables,
			BoardsTable: "Boards",
			EventsQueue: "board-events",
			CacheTTL:    5 * time.Minute,
		},
		Persistence: persistence.DefaultConfig(),
		ListenAddr:  ":8080",
		LogFormat:   "text",
	}
}

// Load reads the configuration and validates it for serving.
func Load() (Config, error) {
	cfg, err := Read()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read layers defaults, the YAML file named by PRISM_BOARD_CONFIG and
// environment variables, in that order.
func Read() (Config, error) {
	cfg := Default()
	if path := envString(FileEnv, ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Storage.Backend = envString("STORE_BACKEND", c.Storage.Backend)
	c.Storage.ConnectionString = envString("STORAGE_CONNECTION_STRING", c.Storage.ConnectionString)
	c.Storage.BoardsTable = envString("BOARDS_TABLE", c.Storage.BoardsTable)
	c.Storage.EventsQueue = envString("BOARD_EVENTS_QUEUE", c.Storage.EventsQueue)
	c.Storage.DatastoreProject = envString("DATASTORE_PROJECT_ID", c.Storage.DatastoreProject)
	c.Storage.Redis = envString("REDIS_CONNECTION_STRING", c.Storage.Redis)
	c.Storage.CacheTTL = envDur("BOARDS_CACHE_TTL", c.Storage.CacheTTL)

	c.Persistence.Debounce = envDur("PERSIST_DEBOUNCE", c.Persistence.Debounce)
	c.Persistence.WriteTimeout = envDur("PERSIST_WRITE_TIMEOUT", c.Persistence.WriteTimeout)
	c.Persistence.ReadTimeout = envDur("PERSIST_READ_TIMEOUT", c.Persistence.ReadTimeout)
	c.Persistence.RetryAttempts = envInt("PERSIST_RETRY_ATTEMPTS", c.Persistence.RetryAttempts)
	c.Persistence.RetryInitial = envDur("PERSIST_RETRY_INITIAL", c.Persistence.RetryInitial)
	c.Persistence.RetryMax = envDur("PERSIST_RETRY_MAX", c.Persistence.RetryMax)

	c.CheckInvariants = envBool("BOARD_CHECK_INVARIANTS", c.CheckInvariants)
	c.Auth.Domain = envString("AUTH0_DOMAIN", c.Auth.Domain)
	c.Auth.Audience = envString("AUTH0_AUDIENCE", c.Auth.Audience)
	c.Auth.SharedSecret = envString("LOCAL_AUTH_SHARED_SECRET", c.Auth.SharedSecret)
	c.ListenAddr = envString("LISTEN_ADDR", c.ListenAddr)
	c.Debug = envBool("DEBUG", c.Debug)
	c.LogFormat = envString("LOG_FORMAT", c.LogFormat)
}

func (c Config) Validate() error {
	switch c.Storage.Backend {
	case storage.BackendTables:
		if c.Storage.ConnectionString == "" || c.Storage.BoardsTable == "" {
			return fmt.Errorf("%w: missing storage config", ErrInvalid)
		}
	case storage.BackendDatastore:
		if c.Storage.DatastoreProject == "" {
			return fmt.Errorf("%w: missing datastore project", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalid, c.Storage.Backend)
	}
	if c.Auth.SharedSecret == "" && c.Auth.Domain == "" {
		return fmt.Errorf("%w: no sign-in method configured", ErrInvalid)
	}
	if c.Auth.Domain != "" && c.Auth.Audience == "" {
		return fmt.Errorf("%w: missing Auth0 audience", ErrInvalid)
	}
	if c.Persistence.Debounce < 0 || c.Persistence.RetryAttempts < 0 {
		return fmt.Errorf("%w: negative persistence settings", ErrInvalid)
	}
	return nil
}

// Issuer is the token issuer expected for federated sign-in.
func (a Auth) Issuer() string {
	if a.Domain == "" {
		return ""
	}
	return "https://" + a.Domain + "/"
}

func (a Auth) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", a.Domain)
}

// RedisOptions parses either a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string. It returns nil when
// no Redis is configured.
func (s Storage) RedisOptions() (*redis.Options, error) {
	conn := strings.TrimSpace(s.Redis)
	if conn == "" {
		return nil, nil
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	if strings.Contains(parts[0], "=") || strings.Contains(parts[0], "://") {
		return nil, fmt.Errorf("%w: redis connection string", ErrInvalid)
	}
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

// NewLogger returns a logger set up from the Debug and LogFormat settings.
func (c Config) NewLogger() *log.Logger {
	logger := log.New()
	if c.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if strings.EqualFold(c.LogFormat, "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	return logger
}
