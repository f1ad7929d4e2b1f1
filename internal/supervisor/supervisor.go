// Package supervisor reports daemon state to systemd via sd_notify.
// Outside systemd every call is a no-op.
package supervisor

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog/log"
)

// Notifier sends sd_notify states.
type Notifier struct {
	notify  func(state string) (bool, error)
	enabled func() (time.Duration, error)
}

// New returns a Notifier using $NOTIFY_SOCKET and $WATCHDOG_USEC.
func New() *Notifier {
	return &Notifier{
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		enabled: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

// Ready tells systemd startup is complete.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping tells systemd the daemon is shutting down.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		log.Warn().Err(err).Str("state", state).Msg("sd_notify failed")
		return
	}
	if sent {
		log.Debug().Str("state", state).Msg("sd_notify sent")
	}
}

// RunWatchdog pings the systemd watchdog at half its interval for as long as
// lastTick keeps advancing. A stalled renderer stops the pings so systemd
// restarts the daemon. Returns immediately if no watchdog is configured.
func (n *Notifier) RunWatchdog(ctx context.Context, lastTick func() time.Time) {
	interval, err := n.enabled()
	if err != nil {
		log.Warn().Err(err).Msg("watchdog configuration invalid")
		return
	}
	if interval <= 0 {
		return
	}
	n.watch(ctx, interval, lastTick, time.Now)
}

func (n *Notifier) watch(ctx context.Context, interval time.Duration, lastTick func() time.Time, now func() time.Time) {
	period := interval / 2
	log.Info().Dur("interval", interval).Msg("systemd watchdog enabled")

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := lastTick()
			if last.IsZero() || now().Sub(last) > interval {
				log.Warn().Time("last_tick", last).Msg("renderer stalled, withholding watchdog ping")
				continue
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
