package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a starter file in format "toml" or "yaml".
func Template(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "toml":
		return tomlTemplate, nil
	case "yaml", "yml":
		return yamlTemplate, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func WriteTemplate(path, format string, overwrite bool) error {
	template, err := Template(format)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tomlTemplate = `service_id = "capbridge"
color = "#FF6B00"
coordinator_url = "ws://localhost:5155/myko"
admin_addr = "127.0.0.1:9190"
cors_origins = ["http://localhost:3000"]
prefix = "RS_"
whitelist = []
ping_on_connect = true
lamps = ["Lamp"]

[session]
security_mode = "development"
dial_timeout = "5s"
write_timeout = "5s"
outbox_capacity = 4096

[backoff]
initial = "250ms"
max = "5s"
multiplier = 2.0
jitter = true
`

const yamlTemplate = `service_id: capbridge
color: "#FF6B00"
coordinator_url: ws://localhost:5155/myko
admin_addr: 127.0.0.1:9190
cors_origins:
  - http://localhost:3000
prefix: RS_
whitelist: []
ping_on_connect: true
lamps:
  - Lamp

session:
  security_mode: development
  dial_timeout: 5s
  write_timeout: 5s
  outbox_capacity: 4096

backoff:
  initial: 250ms
  max: 5s
  multiplier: 2.0
  jitter: true
`
