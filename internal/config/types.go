package config

import (
	"strings"
	"time"
)

// BackendName identifies a scheduling backend (stringly for YAML and marker files).
type BackendName string

const (
	BackendCron    BackendName = "cron"
	BackendSystemd BackendName = "systemd"
	// BackendDaemon identifies in-process scheduled runs; it never participates
	// in the primary/fallback role assignment.
	BackendDaemon BackendName = "daemon"
	BackendManual BackendName = "manual"
)

// KnownBackend reports whether s names a backend takops understands.
func KnownBackend(s string) bool {
	switch BackendName(strings.ToLower(strings.TrimSpace(s))) {
	case BackendCron, BackendSystemd, BackendDaemon, BackendManual:
		return true
	}
	return false
}

// RetryBackoffMode enumerates supported retry backoff strategies.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// ACMEMethod enumerates supported certbot authenticators.
type ACMEMethod string

const (
	ACMEMethodWebroot    ACMEMethod = "webroot"
	ACMEMethodStandalone ACMEMethod = "standalone"
)

// Config is the root takops configuration.
type Config struct {
	// Domain is the fully qualified hostname certificates are issued for (TAK_URI).
	Domain string `yaml:"domain" env:"TAK_URI"`

	StateDir string `yaml:"state_dir" env:"TAKOPS_STATE_DIR"`
	LogDir   string `yaml:"log_dir" env:"TAKOPS_LOG_DIR"`

	ACME      ACMEConfig      `yaml:"acme"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Failover  FailoverConfig  `yaml:"failover"`
	Retry     RetryConfig     `yaml:"retry"`
	Services  ServicesConfig  `yaml:"services"`
	Templates TemplatesConfig `yaml:"templates"`
	Notify    NotifyConfig    `yaml:"notify"`
	Daemon    DaemonConfig    `yaml:"daemon"`
}

// ACMEConfig holds LetsEncrypt/certbot settings.
type ACMEConfig struct {
	Enabled     bool       `yaml:"enabled" env:"LETSENCRYPT"`
	Email       string     `yaml:"email" env:"LE_EMAIL"`
	Method      ACMEMethod `yaml:"method"`
	CertbotPath string     `yaml:"certbot_path"`
	WebrootPath string     `yaml:"webroot_path"`
	Staging     bool       `yaml:"staging" env:"LE_STAGING"`
	// LiveDir is where certbot places issued certificates.
	LiveDir string `yaml:"live_dir"`
}

// ScheduleConfig describes when renewal runs fire and how staleness is judged.
type ScheduleConfig struct {
	// CronExpr is a standard 5-field cron expression used for the cron backend
	// and for deriving the expected run interval.
	CronExpr string `yaml:"cron_expr"`
	// SystemdOnCalendar is the OnCalendar= expression for the systemd timer.
	SystemdOnCalendar string `yaml:"systemd_on_calendar"`
	// GraceFactor scales the expected interval before a heartbeat counts as stale.
	GraceFactor float64 `yaml:"grace_factor"`
}

// FailoverConfig tunes the primary/fallback state machine.
type FailoverConfig struct {
	// Threshold is the score below which the primary counts as breaching.
	Threshold int `yaml:"threshold"`
	// PromoteThreshold is the minimum fallback score required for promotion.
	PromoteThreshold int `yaml:"promote_threshold"`
	// Consecutive is the number of successive breaching evaluations before failover.
	Consecutive int `yaml:"consecutive"`
	// Failback enables swapping back once the preferred backend recovers.
	Failback           bool `yaml:"failback"`
	RecoverThreshold   int  `yaml:"recover_threshold"`
	RecoverConsecutive int  `yaml:"recover_consecutive"`
	// Preferred names the backend that should hold primary when both are healthy.
	Preferred BackendName `yaml:"preferred"`
}

// RetryConfig holds retry/backoff knobs for certbot invocations.
type RetryConfig struct {
	Mode       RetryBackoffMode `yaml:"mode"`
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	MaxRetries int              `yaml:"max_retries"`
}

// ServicesConfig toggles per-service certificate deployment and provisioning.
type ServicesConfig struct {
	TAK      TAKConfig      `yaml:"tak"`
	NodeRED  NodeREDConfig  `yaml:"node_red"`
	Mumble   MumbleConfig   `yaml:"mumble"`
	MediaMTX MediaMTXConfig `yaml:"mediamtx"`
}

// TAKConfig covers the TAK Server keystore deployment.
type TAKConfig struct {
	Enabled      bool   `yaml:"enabled"`
	CertDir      string `yaml:"cert_dir"`
	KeystorePass string `yaml:"keystore_pass"`
	ServiceUnit  string `yaml:"service_unit"`
}

// NodeREDConfig covers the Node-RED container.
type NodeREDConfig struct {
	Enabled  bool   `yaml:"enabled" env:"NODE_RED"`
	DataDir  string `yaml:"data_dir"`
	HTTPPort int    `yaml:"http_port"`
}

// MumbleConfig covers the Mumble voice server.
type MumbleConfig struct {
	Enabled     bool   `yaml:"enabled" env:"MUMBLE"`
	ConfigPath  string `yaml:"config_path"`
	ServiceUnit string `yaml:"service_unit"`
	Port        int    `yaml:"port"`
}

// MediaMTXConfig covers the MediaMTX streaming server.
type MediaMTXConfig struct {
	Enabled    bool   `yaml:"enabled" env:"MEDIAMTX"`
	ConfigPath string `yaml:"config_path"`
	DataDir    string `yaml:"data_dir"`
	RTSPPort   int    `yaml:"rtsp_port"`
}

// TemplatesConfig points at an optional git repository of config templates.
type TemplatesConfig struct {
	RepoURL string `yaml:"repo_url" env:"TAKOPS_TEMPLATES_URL"`
	Ref     string `yaml:"ref"`
}

// NotifyConfig enables renewal/failover event publishing. Disabled unless a
// NATS URL is configured.
type NotifyConfig struct {
	NATSURL string        `yaml:"nats_url" env:"TAKOPS_NATS_URL"`
	Subject string        `yaml:"subject"`
	Timeout time.Duration `yaml:"timeout"`
}

// Enabled reports whether notifications are configured.
func (n NotifyConfig) Enabled() bool { return n.NATSURL != "" }

// DaemonConfig tunes the optional in-process scheduling mode.
type DaemonConfig struct {
	Listen        string        `yaml:"listen"`
	CheckInterval time.Duration `yaml:"check_interval"`
	RenewInterval time.Duration `yaml:"renew_interval"`
}
