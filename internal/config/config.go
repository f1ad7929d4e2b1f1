// Package config loads the daemon configuration from a TOML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/sweeney/safeshutdown/internal/gpio"
	"github.com/sweeney/safeshutdown/internal/pattern"
)

// DefaultPath is where the config file is looked for unless SAFESHUTDOWN_CONFIG is set.
const DefaultPath = "/etc/safeshutdown/config.toml"

// Environment variables.
const (
	EnvPath     = "SAFESHUTDOWN_CONFIG"
	EnvLogLevel = "SAFESHUTDOWN_LOG_LEVEL"
)

// Workload stop modes.
const (
	WorkloadDocker  = "docker"
	WorkloadSystemd = "systemd"
	WorkloadNone    = "none"
)

// Reboot methods.
const (
	RebootLogind  = "logind"
	RebootCommand = "command"
	RebootAuto    = "auto"
)

// Duration is a time.Duration written as a string ("200ms", "3s") in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete daemon configuration.
type Config struct {
	GPIO       GPIO       `toml:"gpio" json:"gpio"`
	Timing     Timing     `toml:"timing" json:"timing"`
	Thresholds Thresholds `toml:"thresholds" json:"thresholds"`
	Workload   Workload   `toml:"workload" json:"workload"`
	Reboot     Reboot     `toml:"reboot" json:"reboot"`
	MQTT       MQTT       `toml:"mqtt" json:"mqtt"`
	HTTP       HTTP       `toml:"http" json:"http"`
	Statsd     Statsd     `toml:"statsd" json:"statsd"`
	Log        Log        `toml:"log" json:"log"`
}

// GPIO selects the chip and line offsets.
type GPIO struct {
	Chip        string `toml:"chip" json:"chip"`
	PowerButton int    `toml:"power_button" json:"power_button"`
	ResetButton int    `toml:"reset_button" json:"reset_button"`
	LED         int    `toml:"led" json:"led"`
	PowerEnable int    `toml:"power_enable" json:"power_enable"`
}

// Timing holds the renderer, debounce and shutdown intervals. The shutdown
// strobe is fixed at led.DefaultStrobe and is not configurable.
type Timing struct {
	Tick            Duration `toml:"tick" json:"tick"`
	Settle          Duration `toml:"settle" json:"settle"`
	Grace           Duration `toml:"grace" json:"grace"`
	WorkloadTimeout Duration `toml:"workload_timeout" json:"workload_timeout"`
}

// Thresholds mirrors pattern.Thresholds in the file layout.
type Thresholds struct {
	LoadLow     float64 `toml:"load_low" json:"load_low"`
	LoadMedium  float64 `toml:"load_medium" json:"load_medium"`
	LoadHigh    float64 `toml:"load_high" json:"load_high"`
	TempLowC    float64 `toml:"temp_low_c" json:"temp_low_c"`
	TempMediumC float64 `toml:"temp_medium_c" json:"temp_medium_c"`
	TempHighC   float64 `toml:"temp_high_c" json:"temp_high_c"`
}

// Pattern converts to the selector's threshold type.
func (t Thresholds) Pattern() pattern.Thresholds {
	return pattern.Thresholds{
		LowLoad:     t.LoadLow,
		MediumLoad:  t.LoadMedium,
		HighLoad:    t.LoadHigh,
		LowTempC:    t.TempLowC,
		MediumTempC: t.TempMediumC,
		HighTempC:   t.TempHighC,
	}
}

// Workload selects how user workloads are stopped before reboot.
type Workload struct {
	Mode  string   `toml:"mode" json:"mode"`
	Units []string `toml:"units" json:"units"`
}

// Reboot selects how the reboot is requested.
type Reboot struct {
	Method  string   `toml:"method" json:"method"`
	Command []string `toml:"command" json:"command"`
}

// MQTT configures the event publisher. An empty Broker disables it.
type MQTT struct {
	Broker   string `toml:"broker" json:"broker"`
	ClientID string `toml:"client_id" json:"client_id"`
	Topic    string `toml:"topic" json:"topic"`
}

// HTTP configures the status server. An empty Addr disables it, which is
// the default.
type HTTP struct {
	Addr string `toml:"addr" json:"addr"`
}

// Statsd configures DogStatsD gauges. An empty Addr disables them.
type Statsd struct {
	Addr      string   `toml:"addr" json:"addr"`
	Namespace string   `toml:"namespace" json:"namespace"`
	Tags      []string `toml:"tags" json:"tags"`
}

// Log configures the global logger.
type Log struct {
	Level string `toml:"level" json:"level"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	th := pattern.DefaultThresholds()
	return Config{
		GPIO: GPIO{
			Chip:        gpio.DefaultChip,
			PowerButton: gpio.DefaultPinPower,
			ResetButton: gpio.DefaultPinReset,
			LED:         gpio.DefaultPinLED,
			PowerEnable: gpio.DefaultPinPowerEn,
		},
		Timing: Timing{
			Tick:            Duration(200 * time.Millisecond),
			Settle:          Duration(50 * time.Millisecond),
			Grace:           Duration(3 * time.Second),
			WorkloadTimeout: Duration(60 * time.Second),
		},
		Thresholds: Thresholds{
			LoadLow:     th.LowLoad,
			LoadMedium:  th.MediumLoad,
			LoadHigh:    th.HighLoad,
			TempLowC:    th.LowTempC,
			TempMediumC: th.MediumTempC,
			TempHighC:   th.HighTempC,
		},
		Workload: Workload{Mode: WorkloadDocker},
		Reboot:   Reboot{Method: RebootAuto},
		MQTT: MQTT{
			ClientID: "safeshutdown",
			Topic:    "safeshutdown/events",
		},
		Statsd: Statsd{Namespace: "safeshutdown."},
		Log:    Log{Level: "info"},
	}
}

// Path returns the config file path, honouring SAFESHUTDOWN_CONFIG.
func Path() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		cfg.Log.Level = lvl
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() error {
	var errs []error

	durations := map[string]Duration{
		"timing.tick":             c.Timing.Tick,
		"timing.settle":           c.Timing.Settle,
		"timing.workload_timeout": c.Timing.WorkloadTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Timing.Grace < 0 {
		errs = append(errs, errors.New("timing.grace must not be negative"))
	}

	if err := c.Thresholds.Pattern().Validate(); err != nil {
		errs = append(errs, err)
	}

	pins := map[int]string{}
	for _, p := range []struct {
		name string
		pin  int
	}{
		{"power_button", c.GPIO.PowerButton},
		{"reset_button", c.GPIO.ResetButton},
		{"led", c.GPIO.LED},
		{"power_enable", c.GPIO.PowerEnable},
	} {
		if p.pin < 0 {
			errs = append(errs, fmt.Errorf("gpio.%s must not be negative", p.name))
			continue
		}
		if other, dup := pins[p.pin]; dup {
			errs = append(errs, fmt.Errorf("gpio.%s shares pin %d with gpio.%s", p.name, p.pin, other))
			continue
		}
		pins[p.pin] = p.name
	}
	if c.GPIO.Chip == "" {
		errs = append(errs, errors.New("gpio.chip must be set"))
	}

	switch c.Workload.Mode {
	case WorkloadDocker, WorkloadNone:
	case WorkloadSystemd:
		if len(c.Workload.Units) == 0 {
			errs = append(errs, errors.New("workload.units must list at least one unit in systemd mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown workload.mode %q", c.Workload.Mode))
	}

	switch c.Reboot.Method {
	case RebootLogind, RebootCommand, RebootAuto:
	default:
		errs = append(errs, fmt.Errorf("unknown reboot.method %q", c.Reboot.Method))
	}

	if c.MQTT.Broker != "" && strings.TrimSpace(c.MQTT.Topic) == "" {
		errs = append(errs, errors.New("mqtt.topic must be set when a broker is configured"))
	}

	return errors.Join(errs...)
}
