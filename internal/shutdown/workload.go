package shutdown

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/rs/zerolog/log"
)

// WorkloadStopper gracefully stops running workloads before a reboot.
// Implementations should honour ctx's deadline.
type WorkloadStopper interface {
	StopWorkloads(ctx context.Context) error
}

// StopFunc adapts a function to a WorkloadStopper.
type StopFunc func(ctx context.Context) error

// StopWorkloads calls f(ctx).
func (f StopFunc) StopWorkloads(ctx context.Context) error { return f(ctx) }

// NoopStopper stops nothing.
type NoopStopper struct{}

// StopWorkloads does nothing.
func (NoopStopper) StopWorkloads(context.Context) error { return nil }

// commandRunner runs a command and returns its stdout.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, msg)
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// DockerStopper stops every running Docker container.
// If Docker is not installed or no containers are running, it is a no-op.
type DockerStopper struct {
	run commandRunner
}

// NewDockerStopper creates a DockerStopper using the docker CLI.
func NewDockerStopper() *DockerStopper {
	return &DockerStopper{run: runCommand}
}

// StopWorkloads lists running containers and stops them in one call.
func (d *DockerStopper) StopWorkloads(ctx context.Context) error {
	out, err := d.run(ctx, "docker", "ps", "-q")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			log.Debug().Msg("docker not installed, nothing to stop")
			return nil
		}
		return fmt.Errorf("list containers: %w", err)
	}

	ids := strings.Fields(string(out))
	if len(ids) == 0 {
		log.Info().Msg("no running containers")
		return nil
	}

	log.Info().Int("containers", len(ids)).Msg("stopping docker containers")
	if _, err := d.run(ctx, "docker", append([]string{"stop"}, ids...)...); err != nil {
		return fmt.Errorf("stop containers: %w", err)
	}
	return nil
}

// unitManager is the subset of the systemd D-Bus connection UnitStopper uses.
type unitManager interface {
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	Close()
}

// UnitStopper stops a list of systemd units over D-Bus, in order.
type UnitStopper struct {
	Units []string
	dial  func(ctx context.Context) (unitManager, error)
}

// NewUnitStopper creates a UnitStopper for the system bus.
func NewUnitStopper(units []string) *UnitStopper {
	return &UnitStopper{
		Units: units,
		dial: func(ctx context.Context) (unitManager, error) {
			return dbus.NewSystemConnectionContext(ctx)
		},
	}
}

// StopWorkloads stops each unit and waits for its job to finish. All units
// are attempted; failures are joined.
func (u *UnitStopper) StopWorkloads(ctx context.Context) error {
	if len(u.Units) == 0 {
		return nil
	}
	conn, err := u.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect systemd: %w", err)
	}
	defer conn.Close()

	var errs []error
	for _, unit := range u.Units {
		done := make(chan string, 1)
		if _, err := conn.StopUnitContext(ctx, unit, "replace", done); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", unit, err))
			continue
		}
		select {
		case result := <-done:
			if result != "done" {
				errs = append(errs, fmt.Errorf("stop %s: job %s", unit, result))
				continue
			}
			log.Info().Str("unit", unit).Msg("unit stopped")
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("stop %s: %w", unit, ctx.Err()))
			return errors.Join(errs...)
		}
	}
	return errors.Join(errs...)
}
