// Package config implements the motor controller's compile-time defaults,
// optional KEY=VALUE override file, and sanity check (spec §4.L, §6),
// grounded on original_source/config/src/motor_config_runtime.c.
package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/viamrobotics/bldc/logging"
)

// Config holds every tunable named in spec §3/§6/§9. It is frozen after
// init: nothing in the core mutates it at runtime.
type Config struct {
	PolePairs     float64
	KvRPMPerV     float64
	RPhaseOhm     float64
	LPhaseH       float64
	IMaxA         float64
	BusVMaxV      float64
	BusVMinV      float64
	RPMMax        float64
	FastLoopHz    float64
	SlowLoopHz    float64
	PWMFrequencyHz float64

	SensorlessMinRPMMech     float64
	SensorlessStableSamples  int

	StartupDuty   float64
	StepsTotal    int
	TicksPerStep  int
	HandoverRPM   float64
	RevThreshold  float64
	StopThreshold float64
	SlewRatePerSec float64

	SpeedPIKp float64
	SpeedPIKi float64

	JitterFaultPct float64
}

// Default returns the compile-time defaults (spec §4.L), matching the
// original's MOTOR_* constants plus the §4.H/§9 bring-up tunables.
func Default() Config {
	return Config{
		PolePairs:      7,
		KvRPMPerV:      100,
		RPhaseOhm:      0.1,
		LPhaseH:        0.0001,
		IMaxA:          20,
		BusVMaxV:       40,
		BusVMinV:       10,
		RPMMax:         5000,
		FastLoopHz:     20000,
		SlowLoopHz:     1000,
		PWMFrequencyHz: 20000,

		SensorlessMinRPMMech:    500,
		SensorlessStableSamples: 50,

		StartupDuty:    0.2,
		StepsTotal:     36,
		TicksPerStep:   5,
		HandoverRPM:    50,
		RevThreshold:   100,
		StopThreshold:  50,
		SlewRatePerSec: 6000,

		SpeedPIKp: 0.05,
		SpeedPIKi: 5.0,

		JitterFaultPct: 10.0,
	}
}

// keyMap associates a recognized KEY=VALUE name with a setter applying a
// positive value onto cfg. Integer-valued keys parse with strconv.Atoi;
// everything else is float.
var keyMap = map[string]func(cfg *Config, raw string){
	"MOTOR_POLE_PAIRS":          setFloat(func(c *Config) *float64 { return &c.PolePairs }),
	"MOTOR_KV_RPM_PER_V":        setFloat(func(c *Config) *float64 { return &c.KvRPMPerV }),
	"MOTOR_R_PHASE_OHM":         setFloat(func(c *Config) *float64 { return &c.RPhaseOhm }),
	"MOTOR_L_PHASE_H":           setFloat(func(c *Config) *float64 { return &c.LPhaseH }),
	"MOTOR_I_MAX_A":             setFloat(func(c *Config) *float64 { return &c.IMaxA }),
	"MOTOR_BUS_V_MAX_V":         setFloat(func(c *Config) *float64 { return &c.BusVMaxV }),
	"MOTOR_BUS_V_MIN_V":         setFloat(func(c *Config) *float64 { return &c.BusVMinV }),
	"MOTOR_RPM_MAX":             setFloat(func(c *Config) *float64 { return &c.RPMMax }),
	"FAST_LOOP_HZ":              setFloat(func(c *Config) *float64 { return &c.FastLoopHz }),
	"SLOW_LOOP_HZ":              setFloat(func(c *Config) *float64 { return &c.SlowLoopHz }),
	"PWM_FREQUENCY_HZ":          setFloat(func(c *Config) *float64 { return &c.PWMFrequencyHz }),
	"SENSORLESS_MIN_RPM_MECH":   setFloat(func(c *Config) *float64 { return &c.SensorlessMinRPMMech }),
	"SENSORLESS_STABLE_SAMPLES": setInt(func(c *Config) *int { return &c.SensorlessStableSamples }),
}

func setFloat(field func(*Config) *float64) func(*Config, string) {
	return func(cfg *Config, raw string) {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return
		}
		*field(cfg) = v
	}
}

func setInt(field func(*Config) *int) func(*Config, string) {
	return func(cfg *Config, raw string) {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return
		}
		*field(cfg) = v
	}
}

// LoadFile applies KEY=VALUE overrides from path onto cfg. Unknown keys are
// logged and ignored; malformed lines are logged and skipped; only
// positive numeric values replace defaults (spec §4.L/§6).
func LoadFile(cfg *Config, path string, logger logging.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening config file %q", path)
	}
	defer f.Close() //nolint:errcheck

	return applyOverrides(cfg, f, logger)
}

func applyOverrides(cfg *Config, r io.Reader, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			logger.Warnw("config line missing '='", "line", lineNo)
			continue
		}

		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" || val == "" {
			logger.Warnw("config line has empty key or value", "line", lineNo)
			continue
		}

		setter, ok := keyMap[key]
		if !ok {
			logger.Warnw("unrecognized config key, ignoring", "key", key, "line", lineNo)
			continue
		}
		setter(cfg, val)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scanning config file")
	}
	return nil
}

// Validate runs the sanity check of spec §4.L: rejects non-positive
// pole-pairs, inverted bus range, non-positive loop rates, etc. Returns
// ok=true with a nil reasons slice when everything checks out.
func (c Config) Validate() (ok bool, reasons []string) {
	ok = true
	fail := func(reason string) {
		ok = false
		reasons = append(reasons, reason)
	}

	if c.PolePairs <= 0 {
		fail("pole_pairs must be positive")
	}
	if c.KvRPMPerV <= 0 {
		fail("kv_rpm_per_v must be positive")
	}
	if c.BusVMinV <= 0 || c.BusVMinV >= c.BusVMaxV {
		fail("bus voltage range is inverted or non-positive")
	}
	if c.FastLoopHz <= 0 {
		fail("fast_loop_hz must be positive")
	}
	if c.SlowLoopHz <= 0 {
		fail("slow_loop_hz must be positive")
	}
	if c.PWMFrequencyHz <= 0 {
		fail("pwm_frequency_hz must be positive")
	}
	if c.RPMMax <= 0 {
		fail("rpm_max must be positive")
	}
	if c.StepsTotal <= 0 || c.TicksPerStep <= 0 {
		fail("align startup counters must be positive")
	}

	return ok, reasons
}
