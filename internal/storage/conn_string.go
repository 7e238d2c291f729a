package storage

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/chatpulse/internal/config"
)

// DefaultSSLMode is used when the config leaves ssl_mode empty.
const DefaultSSLMode = "prefer"

// BuildConnString builds a postgres:// URL from cfg. Pool sizes travel as
// pool_max_conns and pool_min_conns, which pgxpool.ParseConfig reads.
func BuildConnString(cfg config.DBConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	switch {
	case cfg.Password != "":
		u.User = url.UserPassword(cfg.User, cfg.Password)
	case cfg.User != "":
		u.User = url.User(cfg.User)
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	if cfg.MaxConns > 0 {
		q.Set("pool_max_conns", strconv.Itoa(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		q.Set("pool_min_conns", strconv.Itoa(cfg.MinConns))
	}
	u.RawQuery = q.Encode()

	return u.String()
}
