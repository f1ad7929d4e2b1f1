// Package sampler reads the host's 1-minute load average and CPU temperature.
//
// Sampling never fails: a read error leaves the last known value in place
// (zero before the first successful read) so that metric unavailability
// cannot stall the LED loop.
package sampler

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
)

// DefaultThermalPath is the CPU thermal zone exposed by the Raspberry Pi kernel.
const DefaultThermalPath = "/sys/class/thermal/thermal_zone0/temp"

// Metrics is a point-in-time view of host load and temperature.
type Metrics struct {
	Load1 float64
	TempC float64
}

// Sampler produces a Metrics snapshot.
type Sampler interface {
	Sample() Metrics
}

// HostSampler reads metrics from the running host.
// Not safe for concurrent use; the LED renderer is its only caller.
type HostSampler struct {
	readLoad func() (float64, error)
	readTemp func() (float64, error)

	last       Metrics
	loadFailed bool
	tempFailed bool
	logger     zerolog.Logger
}

// NewHostSampler creates a sampler that reads temperature from thermalPath
// and falls back to the hwmon sensors when that file is unavailable.
func NewHostSampler(thermalPath string) *HostSampler {
	return newSampler(readLoadAvg, func() (float64, error) {
		return readTemperature(thermalPath)
	})
}

func newSampler(readLoad, readTemp func() (float64, error)) *HostSampler {
	return &HostSampler{
		readLoad: readLoad,
		readTemp: readTemp,
		logger:   log.With().Str("component", "sampler").Logger(),
	}
}

// Sample returns fresh metrics, substituting the cached value for any
// metric that cannot be read.
func (s *HostSampler) Sample() Metrics {
	if v, err := s.readLoad(); err != nil {
		s.loadFailed = s.noteFailure(s.loadFailed, "load", err)
	} else {
		s.loadFailed = s.noteRecovery(s.loadFailed, "load")
		s.last.Load1 = v
	}

	if v, err := s.readTemp(); err != nil {
		s.tempFailed = s.noteFailure(s.tempFailed, "temperature", err)
	} else {
		s.tempFailed = s.noteRecovery(s.tempFailed, "temperature")
		s.last.TempC = v
	}

	return s.last
}

func (s *HostSampler) noteFailure(failing bool, metric string, err error) bool {
	if !failing {
		s.logger.Warn().Err(err).Str("metric", metric).Msg("metric unavailable, using last known value")
	} else {
		s.logger.Debug().Err(err).Str("metric", metric).Msg("metric still unavailable")
	}
	return true
}

func (s *HostSampler) noteRecovery(failing bool, metric string) bool {
	if failing {
		s.logger.Info().Str("metric", metric).Msg("metric readable again")
	}
	return false
}

func readLoadAvg() (float64, error) {
	avg, err := load.Avg()
	if err != nil {
		return 0, fmt.Errorf("load average: %w", err)
	}
	return avg.Load1, nil
}

func readTemperature(thermalPath string) (float64, error) {
	tempC, err := readThermalZone(thermalPath)
	if err == nil {
		return tempC, nil
	}
	if tempC, sensorErr := readSensors(); sensorErr == nil {
		return tempC, nil
	}
	return 0, err
}

// readThermalZone parses a millidegree Celsius value.
func readThermalZone(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return float64(milli) / 1000.0, nil
}

func readSensors() (float64, error) {
	temps, err := host.SensorsTemperatures()
	if len(temps) == 0 {
		if err == nil {
			err = fmt.Errorf("no temperature sensors")
		}
		return 0, err
	}
	return pickCPUSensor(temps)
}

// pickCPUSensor prefers a sensor whose key names the CPU or SoC, and
// otherwise takes the first sensor reporting a plausible value.
func pickCPUSensor(temps []host.TemperatureStat) (float64, error) {
	for _, t := range temps {
		key := strings.ToLower(t.SensorKey)
		if strings.Contains(key, "cpu") || strings.Contains(key, "soc") {
			return t.Temperature, nil
		}
	}
	for _, t := range temps {
		if t.Temperature > 0 {
			return t.Temperature, nil
		}
	}
	return 0, fmt.Errorf("no usable temperature sensor among %d", len(temps))
}
