package renew

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/takops/takops/internal/config"
	opserrors "github.com/takops/takops/internal/errors"
	"github.com/takops/takops/internal/execx"
)

// Deployer pushes a freshly renewed certificate into every enabled service.
// A failing target does not stop the others; errors are joined.
type Deployer struct {
	runner   execx.Runner
	cfg      *config.Config
	livePath func(string) string
}

// NewDeployer builds a deployer; livePath resolves live certificate files.
func NewDeployer(runner execx.Runner, cfg *config.Config, livePath func(string) string) *Deployer {
	return &Deployer{runner: runner, cfg: cfg, livePath: livePath}
}

// Deploy updates all enabled services.
func (d *Deployer) Deploy(ctx context.Context) error {
	var errs []error

	if d.cfg.Services.TAK.Enabled {
		if err := d.deployTAK(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if d.cfg.Services.Mumble.Enabled {
		if err := d.deployMumble(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if d.cfg.Services.MediaMTX.Enabled {
		if err := d.deployMediaMTX(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if d.cfg.Services.NodeRED.Enabled {
		if err := d.deployNodeRED(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// deployTAK converts the PEM pair into the PKCS12 keystore TAK Server expects
// and restarts it.
func (d *Deployer) deployTAK(ctx context.Context) error {
	tak := d.cfg.Services.TAK
	p12 := filepath.Join(tak.CertDir, "letsencrypt.p12")

	_, err := d.runner.Run(ctx, "openssl", "pkcs12", "-export",
		"-in", d.livePath("fullchain.pem"),
		"-inkey", d.livePath("privkey.pem"),
		"-out", p12,
		"-name", "letsencrypt",
		"-passout", "pass:"+tak.KeystorePass,
	)
	if err != nil {
		return opserrors.WrapError(err, opserrors.CategoryDeploy, "export TAK keystore")
	}

	if _, err := d.runner.Run(ctx, "systemctl", "restart", tak.ServiceUnit); err != nil {
		return opserrors.WrapError(err, opserrors.CategoryDeploy, "restart TAK server")
	}
	slog.Info("Deployed certificate to TAK server", "keystore", p12)
	return nil
}

// deployMumble copies the PEM pair next to the murmur config and reloads.
func (d *Deployer) deployMumble(ctx context.Context) error {
	dir := filepath.Dir(d.cfg.Services.Mumble.ConfigPath)
	for _, f := range []string{"fullchain.pem", "privkey.pem"} {
		if err := copyFile(d.livePath(f), filepath.Join(dir, "mumble-"+f), 0o640); err != nil {
			return opserrors.WrapError(err, opserrors.CategoryDeploy, "copy certificate for mumble")
		}
	}
	if _, err := d.runner.Run(ctx, "systemctl", "reload-or-restart", d.cfg.Services.Mumble.ServiceUnit); err != nil {
		return opserrors.WrapError(err, opserrors.CategoryDeploy, "reload mumble server")
	}
	slog.Info("Deployed certificate to mumble", "dir", dir)
	return nil
}

// deployMediaMTX drops the PEM pair into the MediaMTX data dir and bounces
// the container.
func (d *Deployer) deployMediaMTX(ctx context.Context) error {
	dataDir := d.cfg.Services.MediaMTX.DataDir
	for _, f := range []string{"fullchain.pem", "privkey.pem"} {
		if err := copyFile(d.livePath(f), filepath.Join(dataDir, f), 0o640); err != nil {
			return opserrors.WrapError(err, opserrors.CategoryDeploy, "copy certificate for mediamtx")
		}
	}
	if _, err := d.runner.Run(ctx, "docker", "restart", "mediamtx"); err != nil {
		return opserrors.WrapError(err, opserrors.CategoryDocker, "restart mediamtx container")
	}
	slog.Info("Deployed certificate to mediamtx", "dir", dataDir)
	return nil
}

// deployNodeRED copies certificates into the Node-RED data dir and bounces
// the container.
func (d *Deployer) deployNodeRED(ctx context.Context) error {
	certDir := filepath.Join(d.cfg.Services.NodeRED.DataDir, "certs")
	if err := os.MkdirAll(certDir, 0o750); err != nil {
		return opserrors.WrapError(err, opserrors.CategoryDeploy, "create node-red cert dir")
	}
	for _, f := range []string{"fullchain.pem", "privkey.pem"} {
		if err := copyFile(d.livePath(f), filepath.Join(certDir, f), 0o640); err != nil {
			return opserrors.WrapError(err, opserrors.CategoryDeploy, "copy certificate for node-red")
		}
	}
	if _, err := d.runner.Run(ctx, "docker", "restart", "node-red"); err != nil {
		return opserrors.WrapError(err, opserrors.CategoryDocker, "restart node-red container")
	}
	slog.Info("Deployed certificate to node-red", "dir", certDir)
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}
