package session

import "time"

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// TLSConfig applies to wss:// coordinator URLs.
type TLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines coordinator session defaults.
type Config struct {
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	PingOnConnect  bool
	OutboxCapacity int
	SecurityMode   SecurityMode
	TLS            TLSConfig
	Backoff        BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		PingOnConnect:  true,
		OutboxCapacity: 4096,
		SecurityMode:   SecurityModeDevelopment,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}
