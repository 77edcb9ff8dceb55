// Package config loads capbridge settings from TOML or YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/capbridge/internal/bridge"
	"github.com/danmuck/capbridge/internal/protocol/session"
	"github.com/danmuck/capbridge/internal/registry"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const DefaultAdminAddr = "127.0.0.1:9190"

var (
	ErrUnsupportedFormat = errors.New("config: unsupported file format")
	ErrInvalid           = errors.New("config: invalid")
)

// Config is the validated runtime configuration.
type Config struct {
	ServiceID      string   `validate:"required,excludesall=: "`
	Color          string   `validate:"required,hexcolor,len=7"`
	CoordinatorURL string   `validate:"required,url"`
	AdminAddr      string   `validate:"omitempty,hostname_port"`
	CORSOrigins    []string `validate:"dive,url"`
	Prefix         string   `validate:"required"`
	Whitelist      []string `validate:"dive,required"`
	PingOnConnect  bool
	Lamps          []string `validate:"dive,required"`

	SecurityMode       string        `validate:"oneof=development production"`
	DialTimeout        time.Duration `validate:"gt=0"`
	WriteTimeout       time.Duration `validate:"gt=0"`
	OutboxCapacity     int           `validate:"gte=0"`
	CAFile             string        `validate:"omitempty,file"`
	CertFile           string        `validate:"required_with=KeyFile,omitempty,file"`
	KeyFile            string        `validate:"required_with=CertFile,omitempty,file"`
	ServerName         string
	InsecureSkipVerify bool

	BackoffInitial    time.Duration `validate:"gt=0"`
	BackoffMax        time.Duration `validate:"gtefield=BackoffInitial"`
	BackoffMultiplier float64       `validate:"gte=1"`
	BackoffJitter     bool
}

func Default() Config {
	sess := session.DefaultConfig()
	return Config{
		ServiceID:         registry.DefaultConfig().ServiceID,
		Color:             bridge.DefaultColor,
		CoordinatorURL:    bridge.DefaultURL,
		AdminAddr:         DefaultAdminAddr,
		Prefix:            registry.DefaultPrefix,
		PingOnConnect:     sess.PingOnConnect,
		Lamps:             []string{"Lamp"},
		SecurityMode:      string(session.SecurityModeDevelopment),
		DialTimeout:       sess.DialTimeout,
		WriteTimeout:      sess.WriteTimeout,
		OutboxCapacity:    sess.OutboxCapacity,
		BackoffInitial:    sess.Backoff.InitialDelay,
		BackoffMax:        sess.Backoff.MaxDelay,
		BackoffMultiplier: sess.Backoff.Multiplier,
		BackoffJitter:     sess.Backoff.Jitter,
	}
}

type fileConfig struct {
	ServiceID      string      `toml:"service_id" yaml:"service_id"`
	Color          string      `toml:"color" yaml:"color"`
	CoordinatorURL string      `toml:"coordinator_url" yaml:"coordinator_url"`
	AdminAddr      string      `toml:"admin_addr" yaml:"admin_addr"`
	CORSOrigins    []string    `toml:"cors_origins" yaml:"cors_origins"`
	Prefix         string      `toml:"prefix" yaml:"prefix"`
	Whitelist      []string    `toml:"whitelist" yaml:"whitelist"`
	PingOnConnect  bool        `toml:"ping_on_connect" yaml:"ping_on_connect"`
	Lamps          []string    `toml:"lamps" yaml:"lamps"`
	Session        fileSession `toml:"session" yaml:"session"`
	Backoff        fileBackoff `toml:"backoff" yaml:"backoff"`
}

type fileSession struct {
	SecurityMode       string `toml:"security_mode" yaml:"security_mode"`
	DialTimeout        string `toml:"dial_timeout" yaml:"dial_timeout"`
	WriteTimeout       string `toml:"write_timeout" yaml:"write_timeout"`
	OutboxCapacity     int    `toml:"outbox_capacity" yaml:"outbox_capacity"`
	CAFile             string `toml:"ca_file" yaml:"ca_file"`
	CertFile           string `toml:"cert_file" yaml:"cert_file"`
	KeyFile            string `toml:"key_file" yaml:"key_file"`
	ServerName         string `toml:"server_name" yaml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

type fileBackoff struct {
	Initial    string  `toml:"initial" yaml:"initial"`
	Max        string  `toml:"max" yaml:"max"`
	Multiplier float64 `toml:"multiplier" yaml:"multiplier"`
	Jitter     bool    `toml:"jitter" yaml:"jitter"`
}

// definedFunc reports whether a dotted key path was present in the file.
type definedFunc func(key ...string) bool

// Load reads path, applies its keys over Default and validates the result.
// The format follows the extension: .toml, .yaml or .yml.
func Load(path string) (Config, error) {
	var (
		raw     fileConfig
		defined definedFunc
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		defined, err = decodeTOML(path, &raw)
	case ".yaml", ".yml":
		defined, err = decodeYAML(path, &raw)
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	cfg, err := apply(Default(), raw, defined)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeTOML(path string, raw *fileConfig) (definedFunc, error) {
	meta, err := toml.DecodeFile(path, raw)
	if err != nil {
		return nil, err
	}
	return meta.IsDefined, nil
}

func decodeYAML(path string, raw *fileConfig) (definedFunc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	if len(doc.Content) > 0 {
		if err := doc.Content[0].Decode(raw); err != nil {
			return nil, err
		}
		collectKeys(doc.Content[0], "", keys)
	}
	return func(key ...string) bool {
		_, ok := keys[strings.Join(key, ".")]
		return ok
	}, nil
}

func collectKeys(n *yaml.Node, prefix string, out map[string]struct{}) {
	if n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if prefix != "" {
			key = prefix + "." + key
		}
		out[key] = struct{}{}
		collectKeys(n.Content[i+1], key, out)
	}
}

func apply(cfg Config, raw fileConfig, defined definedFunc) (Config, error) {
	if defined("service_id") {
		cfg.ServiceID = strings.TrimSpace(raw.ServiceID)
	}
	if defined("color") {
		cfg.Color = strings.ToUpper(strings.TrimSpace(raw.Color))
	}
	if defined("coordinator_url") {
		cfg.CoordinatorURL = strings.TrimSpace(raw.CoordinatorURL)
	}
	if defined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if defined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CORSOrigins)
	}
	if defined("prefix") {
		cfg.Prefix = strings.TrimSpace(raw.Prefix)
	}
	if defined("whitelist") {
		cfg.Whitelist = normalizeList(raw.Whitelist)
	}
	if defined("ping_on_connect") {
		cfg.PingOnConnect = raw.PingOnConnect
	}
	if defined("lamps") {
		cfg.Lamps = normalizeList(raw.Lamps)
	}

	if defined("session", "security_mode") {
		cfg.SecurityMode = string(session.NormalizeSecurityMode(session.SecurityMode(raw.Session.SecurityMode)))
	}
	if err := durationKey(defined, raw.Session.DialTimeout, &cfg.DialTimeout, "session", "dial_timeout"); err != nil {
		return Config{}, err
	}
	if err := durationKey(defined, raw.Session.WriteTimeout, &cfg.WriteTimeout, "session", "write_timeout"); err != nil {
		return Config{}, err
	}
	if defined("session", "outbox_capacity") {
		cfg.OutboxCapacity = raw.Session.OutboxCapacity
	}
	if defined("session", "ca_file") {
		cfg.CAFile = strings.TrimSpace(raw.Session.CAFile)
	}
	if defined("session", "cert_file") {
		cfg.CertFile = strings.TrimSpace(raw.Session.CertFile)
	}
	if defined("session", "key_file") {
		cfg.KeyFile = strings.TrimSpace(raw.Session.KeyFile)
	}
	if defined("session", "server_name") {
		cfg.ServerName = strings.TrimSpace(raw.Session.ServerName)
	}
	if defined("session", "insecure_skip_verify") {
		cfg.InsecureSkipVerify = raw.Session.InsecureSkipVerify
	}

	if err := durationKey(defined, raw.Backoff.Initial, &cfg.BackoffInitial, "backoff", "initial"); err != nil {
		return Config{}, err
	}
	if err := durationKey(defined, raw.Backoff.Max, &cfg.BackoffMax, "backoff", "max"); err != nil {
		return Config{}, err
	}
	if defined("backoff", "multiplier") {
		cfg.BackoffMultiplier = raw.Backoff.Multiplier
	}
	if defined("backoff", "jitter") {
		cfg.BackoffJitter = raw.Backoff.Jitter
	}
	return cfg, nil
}

func durationKey(defined definedFunc, raw string, dst *time.Duration, key ...string) error {
	if !defined(key...) {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", strings.Join(key, "."), err)
	}
	*dst = d
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the coordinator transport policy.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Session().ValidateClientTransport(cfg.CoordinatorURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (c Config) Session() session.Config {
	return session.Config{
		DialTimeout:    c.DialTimeout,
		WriteTimeout:   c.WriteTimeout,
		PingOnConnect:  c.PingOnConnect,
		OutboxCapacity: c.OutboxCapacity,
		SecurityMode:   session.SecurityMode(c.SecurityMode),
		TLS: session.TLSConfig{
			CAFile:             c.CAFile,
			CertFile:           c.CertFile,
			KeyFile:            c.KeyFile,
			ServerName:         c.ServerName,
			InsecureSkipVerify: c.InsecureSkipVerify,
		},
		Backoff: session.BackoffConfig{
			InitialDelay: c.BackoffInitial,
			Multiplier:   c.BackoffMultiplier,
			MaxDelay:     c.BackoffMax,
			Jitter:       c.BackoffJitter,
		},
	}
}

func (c Config) Registry() registry.Config {
	policy := registry.DefaultPolicy()
	policy.Prefix = c.Prefix
	policy.Whitelist = append([]string(nil), c.Whitelist...)
	return registry.Config{ServiceID: c.ServiceID, Policy: policy}
}

func (c Config) Bridge() bridge.Config {
	return bridge.Config{
		URL:             c.CoordinatorURL,
		ServiceID:       c.ServiceID,
		ServiceTypeCode: bridge.DefaultServiceTypeCode,
		Color:           c.Color,
		Session:         c.Session(),
	}
}
