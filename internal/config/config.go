// Package config loads and validates the takops configuration: a YAML file,
// optional .env files, and a process-environment overlay for the handful of
// variables the deployment scripts historically honored (TAK_URI, LETSENCRYPT,
// LE_EMAIL, ...).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envFiles are tried in order; the first one that exists is loaded. Existing
// process environment variables are never overwritten.
var envFiles = []string{"/etc/takops/takops.env", ".env", ".env.local"}

// Load reads the configuration file at path, applies defaults, overlays
// environment variables, and validates the result.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyDefaults()

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("apply environment overlay: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns a defaulted configuration when
// the file does not exist. Used by status/health so a half-provisioned host
// can still be inspected.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		loadEnvFiles()
		cfg := &Config{}
		cfg.ApplyDefaults()
		if err := env.Parse(cfg); err != nil {
			return nil, fmt.Errorf("apply environment overlay: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

func loadEnvFiles() {
	for _, p := range envFiles {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		// godotenv.Load never overrides variables already present.
		_ = godotenv.Load(p)
		return
	}
}

// Init writes a commented default configuration file to path.
func Init(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

const defaultConfigYAML = `# takops configuration
domain: tak.example.org

state_dir: /var/lib/takops
log_dir: /var/log/takops

acme:
  enabled: true
  email: ops@example.org
  method: webroot            # webroot | standalone
  webroot_path: /var/www/letsencrypt
  staging: false

schedule:
  cron_expr: "17 3 * * *"
  systemd_on_calendar: "*-*-* 03:17:00"
  grace_factor: 1.5

failover:
  preferred: systemd
  threshold: 50
  promote_threshold: 70
  consecutive: 2
  failback: true
  recover_threshold: 80
  recover_consecutive: 3

retry:
  mode: exponential
  initial: 5s
  max: 2m
  max_retries: 2

services:
  tak:
    enabled: true
    cert_dir: /opt/tak/certs/files
  node_red:
    enabled: false
  mumble:
    enabled: false
  mediamtx:
    enabled: false

# templates:
#   repo_url: https://example.org/ops/takops-templates.git
#   ref: main

# notify:
#   nats_url: nats://127.0.0.1:4222
#   subject: takops.events

daemon:
  listen: ":8137"
  check_interval: 15m
  renew_interval: 12h
`
