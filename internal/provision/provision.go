// Package provision sets up the TAK companion services: rendered config
// files, generated credentials, and container/unit management. It replaces
// hand-edited configs, so every run is idempotent unless --force regenerates
// credentials.
package provision

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/takops/takops/internal/config"
	opserrors "github.com/takops/takops/internal/errors"
	"github.com/takops/takops/internal/execx"
)

// Targets lists the provisionable services.
var Targets = []string{"tak", "node-red", "mumble", "mediamtx", "all"}

// KnownTarget reports whether name is a valid provision target.
func KnownTarget(name string) bool {
	for _, t := range Targets {
		if t == name {
			return true
		}
	}
	return false
}

// Provisioner renders service configuration and brings services up.
type Provisioner struct {
	runner execx.Runner
	cfg    *config.Config
	// templatesDir holds synced template overrides; empty means embedded only.
	templatesDir string
}

// New builds a provisioner. templatesDir may be empty.
func New(runner execx.Runner, cfg *config.Config, templatesDir string) *Provisioner {
	return &Provisioner{runner: runner, cfg: cfg, templatesDir: templatesDir}
}

// renderData is the template context for all service templates.
type renderData struct {
	Domain   string
	Mumble   config.MumbleConfig
	MediaMTX config.MediaMTXConfig
	NodeRED  config.NodeREDConfig

	MumblePassword   string
	MumbleCertPath   string
	MumbleKeyPath    string
	MediaMTXCertPath string
	MediaMTXKeyPath  string
}

// Apply provisions one target, or every enabled service for "all". force
// regenerates credentials that would otherwise be kept.
func (p *Provisioner) Apply(ctx context.Context, target string, force bool) error {
	switch target {
	case "tak":
		return p.provisionTAK(ctx, force)
	case "node-red":
		return p.provisionNodeRED(ctx)
	case "mumble":
		return p.provisionMumble(ctx, force)
	case "mediamtx":
		return p.provisionMediaMTX(ctx)
	case "all":
		type step struct {
			name    string
			enabled bool
			run     func() error
		}
		steps := []step{
			{"tak", p.cfg.Services.TAK.Enabled, func() error { return p.provisionTAK(ctx, force) }},
			{"node-red", p.cfg.Services.NodeRED.Enabled, func() error { return p.provisionNodeRED(ctx) }},
			{"mumble", p.cfg.Services.Mumble.Enabled, func() error { return p.provisionMumble(ctx, force) }},
			{"mediamtx", p.cfg.Services.MediaMTX.Enabled, func() error { return p.provisionMediaMTX(ctx) }},
		}
		for _, s := range steps {
			if !s.enabled {
				slog.Debug("Skipping disabled service", "service", s.name)
				continue
			}
			if err := s.run(); err != nil {
				return fmt.Errorf("provision %s: %w", s.name, err)
			}
		}
		return nil
	default:
		return opserrors.ValidationError(fmt.Sprintf("unknown provision target %q", target))
	}
}

// provisionTAK prepares the TAK Server certificate directory and generates a
// keystore password when none is configured.
func (p *Provisioner) provisionTAK(_ context.Context, force bool) error {
	tak := &p.cfg.Services.TAK
	if err := os.MkdirAll(tak.CertDir, 0o750); err != nil {
		return opserrors.WrapError(err, opserrors.CategoryFileSystem, "create TAK cert dir")
	}

	passFile := filepath.Join(tak.CertDir, "keystore-pass")
	if _, err := os.Stat(passFile); os.IsNotExist(err) || force {
		pass := tak.KeystorePass
		if pass == "" || force {
			var genErr error
			pass, genErr = GeneratePassword(24)
			if genErr != nil {
				return opserrors.WrapError(genErr, opserrors.CategoryInternal, "generate keystore password")
			}
		}
		if err := os.WriteFile(passFile, []byte(pass+"\n"), 0o600); err != nil {
			return opserrors.WrapError(err, opserrors.CategoryFileSystem, "write keystore password")
		}
		tak.KeystorePass = pass
		slog.Info("TAK keystore password written", "path", passFile)
	} else if tak.KeystorePass == "" {
		data, err := os.ReadFile(passFile)
		if err != nil {
			return opserrors.WrapError(err, opserrors.CategoryFileSystem, "read keystore password")
		}
		tak.KeystorePass = string(bytes.TrimSpace(data))
	}

	slog.Info("TAK server provisioned", "cert_dir", tak.CertDir)
	return nil
}

// provisionNodeRED renders the compose fragment and starts the container.
func (p *Provisioner) provisionNodeRED(ctx context.Context) error {
	nr := p.cfg.Services.NodeRED
	if err := os.MkdirAll(nr.DataDir, 0o755); err != nil {
		return opserrors.WrapError(err, opserrors.CategoryFileSystem, "create node-red data dir")
	}

	composePath := filepath.Join(nr.DataDir, "docker-compose.yaml")
	if err := p.render("node-red-compose.yaml.tmpl", composePath, p.data(), 0o644); err != nil {
		return err
	}
	if _, err := p.runner.Run(ctx, "docker", "compose", "-f", composePath, "up", "-d"); err != nil {
		return opserrors.WrapError(err, opserrors.CategoryDocker, "start node-red container")
	}
	slog.Info("Node-RED provisioned", "compose", composePath, "port", nr.HTTPPort)
	return nil
}

// provisionMumble renders the server ini with a generated password and
// restarts the service.
func (p *Provisioner) provisionMumble(ctx context.Context, force bool) error {
	mb := p.cfg.Services.Mumble
	data := p.data()

	pass, err := p.mumblePassword(force)
	if err != nil {
		return err
	}
	data.MumblePassword = pass

	if err := p.render("mumble-server.ini.tmpl", mb.ConfigPath, data, 0o640); err != nil {
		return err
	}
	if _, err := p.runner.Run(ctx, "systemctl", "enable", "--now", mb.ServiceUnit); err != nil {
		return opserrors.WrapError(err, opserrors.CategorySystemd, "enable mumble server")
	}
	if _, err := p.runner.Run(ctx, "systemctl", "restart", mb.ServiceUnit); err != nil {
		return opserrors.WrapError(err, opserrors.CategorySystemd, "restart mumble server")
	}
	slog.Info("Mumble provisioned", "config", mb.ConfigPath, "port", mb.Port)
	return nil
}

// mumblePassword returns the persisted server password, generating one on
// first provision or when force is set.
func (p *Provisioner) mumblePassword(force bool) (string, error) {
	passFile := filepath.Join(filepath.Dir(p.cfg.Services.Mumble.ConfigPath), ".mumble-server-pass")
	if !force {
		if data, err := os.ReadFile(passFile); err == nil {
			return string(bytes.TrimSpace(data)), nil
		}
	}
	pass, err := GeneratePassword(20)
	if err != nil {
		return "", opserrors.WrapError(err, opserrors.CategoryInternal, "generate mumble password")
	}
	if err := os.WriteFile(passFile, []byte(pass+"\n"), 0o600); err != nil {
		return "", opserrors.WrapError(err, opserrors.CategoryFileSystem, "write mumble password")
	}
	return pass, nil
}

// provisionMediaMTX renders server config plus compose fragment and starts
// the container.
func (p *Provisioner) provisionMediaMTX(ctx context.Context) error {
	mtx := p.cfg.Services.MediaMTX
	if err := os.MkdirAll(mtx.DataDir, 0o755); err != nil {
		return opserrors.WrapError(err, opserrors.CategoryFileSystem, "create mediamtx data dir")
	}

	if err := p.render("mediamtx.yml.tmpl", mtx.ConfigPath, p.data(), 0o644); err != nil {
		return err
	}
	composePath := filepath.Join(mtx.DataDir, "docker-compose.yaml")
	if err := p.render("mediamtx-compose.yaml.tmpl", composePath, p.data(), 0o644); err != nil {
		return err
	}
	if _, err := p.runner.Run(ctx, "docker", "compose", "-f", composePath, "up", "-d"); err != nil {
		return opserrors.WrapError(err, opserrors.CategoryDocker, "start mediamtx container")
	}
	slog.Info("MediaMTX provisioned", "config", mtx.ConfigPath, "rtsp_port", mtx.RTSPPort)
	return nil
}

func (p *Provisioner) data() renderData {
	mumbleDir := filepath.Dir(p.cfg.Services.Mumble.ConfigPath)
	return renderData{
		Domain:   p.cfg.Domain,
		Mumble:   p.cfg.Services.Mumble,
		MediaMTX: p.cfg.Services.MediaMTX,
		NodeRED:  p.cfg.Services.NodeRED,

		MumbleCertPath:   filepath.Join(mumbleDir, "mumble-fullchain.pem"),
		MumbleKeyPath:    filepath.Join(mumbleDir, "mumble-privkey.pem"),
		MediaMTXCertPath: filepath.Join(p.cfg.Services.MediaMTX.DataDir, "fullchain.pem"),
		MediaMTXKeyPath:  filepath.Join(p.cfg.Services.MediaMTX.DataDir, "privkey.pem"),
	}
}

// render executes the named template into path.
func (p *Provisioner) render(name, path string, data renderData, perm os.FileMode) error {
	tmpl, err := loadTemplate(p.templatesDir, name)
	if err != nil {
		return opserrors.WrapError(err, opserrors.CategoryInternal, "load template")
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return opserrors.WrapError(err, opserrors.CategoryInternal, fmt.Sprintf("render template %s", name))
	}
	if err := os.WriteFile(path, buf.Bytes(), perm); err != nil {
		return opserrors.WrapError(err, opserrors.CategoryFileSystem, fmt.Sprintf("write %s", path))
	}
	return nil
}
