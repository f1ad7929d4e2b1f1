package shutdown

import (
	"context"
	"errors"
	"fmt"

	godbus "github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

// Rebooter asks the host to reboot. The request is fire-and-forget: success
// means the OS accepted it, not that the board has halted.
type Rebooter interface {
	Reboot(ctx context.Context) error
}

// RebootFunc adapts a function to a Rebooter.
type RebootFunc func(ctx context.Context) error

// Reboot calls f(ctx).
func (f RebootFunc) Reboot(ctx context.Context) error { return f(ctx) }

// DefaultRebootCommand is equivalent to `shutdown -r now`.
var DefaultRebootCommand = []string{"shutdown", "-r", "now"}

// CommandRebooter reboots by running an external command.
type CommandRebooter struct {
	args []string
	run  commandRunner
}

// NewCommandRebooter creates a CommandRebooter. A nil or empty args uses
// DefaultRebootCommand.
func NewCommandRebooter(args []string) *CommandRebooter {
	if len(args) == 0 {
		args = DefaultRebootCommand
	}
	return &CommandRebooter{args: args, run: runCommand}
}

// Reboot runs the reboot command.
func (c *CommandRebooter) Reboot(ctx context.Context) error {
	if _, err := c.run(ctx, c.args[0], c.args[1:]...); err != nil {
		return fmt.Errorf("reboot command: %w", err)
	}
	return nil
}

// logind D-Bus names.
const (
	logindDest   = "org.freedesktop.login1"
	logindPath   = "/org/freedesktop/login1"
	logindReboot = "org.freedesktop.login1.Manager.Reboot"
)

// LogindRebooter asks systemd-logind to reboot over D-Bus. A polkit denial,
// an inhibitor or a bus failure is returned as an error.
type LogindRebooter struct {
	call func(ctx context.Context) error
}

// NewLogindRebooter creates a LogindRebooter on the system bus.
func NewLogindRebooter() *LogindRebooter {
	return &LogindRebooter{call: callLogindReboot}
}

// Reboot issues org.freedesktop.login1.Manager.Reboot without interactive
// authorization.
func (l *LogindRebooter) Reboot(ctx context.Context) error {
	call := l.call
	if call == nil {
		call = callLogindReboot
	}
	if err := call(ctx); err != nil {
		return fmt.Errorf("logind reboot: %w", err)
	}
	return nil
}

func callLogindReboot(ctx context.Context) error {
	conn, err := godbus.ConnectSystemBus(godbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}
	defer conn.Close()
	return conn.Object(logindDest, godbus.ObjectPath(logindPath)).
		CallWithContext(ctx, logindReboot, 0, false).Err
}

// FallbackRebooter tries Primary and, if it fails, Secondary.
type FallbackRebooter struct {
	Primary   Rebooter
	Secondary Rebooter
}

// Reboot tries each rebooter in turn.
func (f FallbackRebooter) Reboot(ctx context.Context) error {
	err := f.Primary.Reboot(ctx)
	if err == nil {
		return nil
	}
	log.Warn().Err(err).Msg("primary reboot method failed, trying fallback")
	if err2 := f.Secondary.Reboot(ctx); err2 != nil {
		return errors.Join(err, err2)
	}
	return nil
}
