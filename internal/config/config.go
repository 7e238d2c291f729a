package config

import "time"

// ClientConfig is the root configuration for a chatpulse client.
type ClientConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	API        APIConfig        `yaml:"api"`
	Auth       AuthConfig       `yaml:"auth"`
	Connection ConnectionConfig `yaml:"connection"`
	Storage    StorageConfig    `yaml:"storage"`
	Views      ViewsConfig      `yaml:"views"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// InstanceConfig identifies this client.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds backend REST and websocket endpoints.
type APIConfig struct {
	RestURL      string        `yaml:"rest_url"`
	WSURL        string        `yaml:"ws_url"`
	WSPath       string        `yaml:"ws_path"` // Appended to ws_url, token goes in the query string
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	RateLimit    float64       `yaml:"rate_limit"` // Requests per second, 0 = unlimited
	RateBurst    int           `yaml:"rate_burst"`
}

// AuthConfig holds identity provider settings.
type AuthConfig struct {
	APIKey      string `yaml:"api_key"`      // Identity provider web API key
	IdentityURL string `yaml:"identity_url"` // Sign-in endpoint base
	TokenURL    string `yaml:"token_url"`    // Refresh token exchange endpoint
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	CustomToken string `yaml:"custom_token"` // Admin-issued login token, used instead of email/password
}

// ConnectionConfig holds real-time connection settings.
type ConnectionConfig struct {
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	BufferSize        int           `yaml:"buffer_size"`
	StateBuffer       int           `yaml:"state_buffer"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"` // Minimum spacing between manual reconnects
}

// StorageConfig selects where the refresh token is kept between runs.
type StorageConfig struct {
	Driver   string       `yaml:"driver"` // "sqlite", "postgres" or "memory"
	SQLite   SQLiteConfig `yaml:"sqlite"`
	Postgres DBConfig     `yaml:"postgres"`
}

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// SQLiteConfig holds the local database file location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// DBConfig holds a single PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ViewsConfig holds consumer view settings.
type ViewsConfig struct {
	PageSize          int           `yaml:"page_size"`
	ConversationCache int           `yaml:"conversation_cache"`
	SearchDebounce    time.Duration `yaml:"search_debounce"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
