package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID        = "chatpulse"
	DefaultWSPath            = "/message"
	DefaultAPITimeout        = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultRetryBackoff      = 1 * time.Second
	DefaultRateBurst         = 5
	DefaultIdentityURL       = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenURL          = "https://securetoken.googleapis.com/v1/token"
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultPingTimeout       = 90 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultBufferSize        = 1000
	DefaultStateBuffer       = 16
	DefaultReconnectInterval = 2 * time.Second
	DefaultStorageDriver     = DriverSQLite
	DefaultSQLitePath        = "chatpulse.db"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultPageSize          = 100
	DefaultConversationCache = 16
	DefaultSearchDebounce    = 2 * time.Second
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultLogLevel          = "info"
)

// ApplyDefaults fills every zero-valued optional field.
func (c *ClientConfig) ApplyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// API defaults
	if c.API.WSPath == "" {
		c.API.WSPath = DefaultWSPath
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}
	if c.API.RateBurst == 0 {
		c.API.RateBurst = DefaultRateBurst
	}

	// Auth defaults
	if c.Auth.IdentityURL == "" {
		c.Auth.IdentityURL = DefaultIdentityURL
	}
	if c.Auth.TokenURL == "" {
		c.Auth.TokenURL = DefaultTokenURL
	}

	// Connection defaults
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}
	if c.Connection.StateBuffer == 0 {
		c.Connection.StateBuffer = DefaultStateBuffer
	}
	if c.Connection.ReconnectInterval == 0 {
		c.Connection.ReconnectInterval = DefaultReconnectInterval
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = DefaultSQLitePath
	}
	applyDBDefaults(&c.Storage.Postgres)

	// Views defaults
	if c.Views.PageSize == 0 {
		c.Views.PageSize = DefaultPageSize
	}
	if c.Views.ConversationCache == 0 {
		c.Views.ConversationCache = DefaultConversationCache
	}
	if c.Views.SearchDebounce == 0 {
		c.Views.SearchDebounce = DefaultSearchDebounce
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
