package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "listen", "listener":
		return listenTemplate, nil
	case "connect", "client":
		return connectTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
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

const listenTemplate = `name = "pipe.local"
role = "listen"
transport = "unix"
socket_dir = "/tmp/msgpipe"
timeout = "0s"

[session]
retry_interval = "50ms"
poll_interval = "50ms"
read_buffer_size = 65536
queue_capacity = 200000
queue_policy = "wait"
max_payload_bytes = 67108864
max_rearm_failures = 5

[admin]
addr = "127.0.0.1:9400"
cors_origins = ["http://localhost:3000"]
`

const connectTemplate = `name = "pipe.local"
role = "connect"
transport = "unix"
socket_dir = "/tmp/msgpipe"
timeout = "5s"

[session]
retry_interval = "50ms"
queue_policy = "wait"
`
