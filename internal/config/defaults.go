package config

import "time"

// ApplyDefaults fills zero values with sensible defaults. Called after YAML
// unmarshal and before the environment overlay so explicit env vars still win.
func (c *Config) ApplyDefaults() {
	if c.StateDir == "" {
		c.StateDir = "/var/lib/takops"
	}
	if c.LogDir == "" {
		c.LogDir = "/var/log/takops"
	}

	if c.ACME.Method == "" {
		c.ACME.Method = ACMEMethodWebroot
	}
	if c.ACME.CertbotPath == "" {
		c.ACME.CertbotPath = "certbot"
	}
	if c.ACME.WebrootPath == "" {
		c.ACME.WebrootPath = "/var/www/letsencrypt"
	}
	if c.ACME.LiveDir == "" {
		c.ACME.LiveDir = "/etc/letsencrypt/live"
	}

	if c.Schedule.CronExpr == "" {
		c.Schedule.CronExpr = "17 3 * * *"
	}
	if c.Schedule.SystemdOnCalendar == "" {
		c.Schedule.SystemdOnCalendar = "*-*-* 03:17:00"
	}
	if c.Schedule.GraceFactor <= 0 {
		c.Schedule.GraceFactor = 1.5
	}

	if c.Failover.Threshold == 0 {
		c.Failover.Threshold = 50
	}
	if c.Failover.PromoteThreshold == 0 {
		c.Failover.PromoteThreshold = 70
	}
	if c.Failover.Consecutive == 0 {
		c.Failover.Consecutive = 2
	}
	if c.Failover.RecoverThreshold == 0 {
		c.Failover.RecoverThreshold = 80
	}
	if c.Failover.RecoverConsecutive == 0 {
		c.Failover.RecoverConsecutive = 3
	}
	if c.Failover.Preferred == "" {
		c.Failover.Preferred = BackendSystemd
	}

	if c.Retry.Mode == "" {
		c.Retry.Mode = RetryBackoffExponential
	}
	if c.Retry.Initial == 0 {
		c.Retry.Initial = 5 * time.Second
	}
	if c.Retry.Max == 0 {
		c.Retry.Max = 2 * time.Minute
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 2
	}

	if c.Services.TAK.CertDir == "" {
		c.Services.TAK.CertDir = "/opt/tak/certs/files"
	}
	if c.Services.TAK.ServiceUnit == "" {
		c.Services.TAK.ServiceUnit = "takserver"
	}
	if c.Services.NodeRED.DataDir == "" {
		c.Services.NodeRED.DataDir = "/opt/node-red"
	}
	if c.Services.NodeRED.HTTPPort == 0 {
		c.Services.NodeRED.HTTPPort = 1880
	}
	if c.Services.Mumble.ConfigPath == "" {
		c.Services.Mumble.ConfigPath = "/etc/mumble-server.ini"
	}
	if c.Services.Mumble.ServiceUnit == "" {
		c.Services.Mumble.ServiceUnit = "mumble-server"
	}
	if c.Services.Mumble.Port == 0 {
		c.Services.Mumble.Port = 64738
	}
	if c.Services.MediaMTX.ConfigPath == "" {
		c.Services.MediaMTX.ConfigPath = "/opt/mediamtx/mediamtx.yml"
	}
	if c.Services.MediaMTX.DataDir == "" {
		c.Services.MediaMTX.DataDir = "/opt/mediamtx"
	}
	if c.Services.MediaMTX.RTSPPort == 0 {
		c.Services.MediaMTX.RTSPPort = 8554
	}

	if c.Templates.Ref == "" {
		c.Templates.Ref = "main"
	}

	if c.Notify.Subject == "" {
		c.Notify.Subject = "takops.events"
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 5 * time.Second
	}

	if c.Daemon.Listen == "" {
		c.Daemon.Listen = ":8137"
	}
	if c.Daemon.CheckInterval == 0 {
		c.Daemon.CheckInterval = 15 * time.Minute
	}
	if c.Daemon.RenewInterval == 0 {
		c.Daemon.RenewInterval = 12 * time.Hour
	}
}
