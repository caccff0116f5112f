package main

import (
	"flag"
	"log"

	"github.com/danmuck/msgpipe/internal/config"
)

func main() {
	kind := flag.String("kind", "listen", "config kind: listen|connect")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		cfg, err := config.LoadChannelConfig(path)
		if err != nil {
			log.Fatal(err)
		}
		if _, err := cfg.SessionConfig(); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s (endpoint %q, transport %s)", *kind, path, cfg.Name, cfg.Transport)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

func defaultPath(kind string) string {
	switch kind {
	case "listen":
		return "cmd/pipectl/listen.toml"
	case "connect":
		return "cmd/pipectl/connect.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
	}
	return ""
}
