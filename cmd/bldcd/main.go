// Command bldcd is the motor controller's process entry point: it parses
// flags, builds a logger, loads the optional config override file, wires
// the periph.io-backed HAL collaborators (or an in-memory fake set for
// benchtop testing), and runs the controller until signaled to stop.
// Grounded on the teacher's cmd/ entrypoint idiom: flag-driven
// configuration, a constructed logging.Logger, and signal.NotifyContext
// for graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/viamrobotics/bldc/app"
	"github.com/viamrobotics/bldc/config"
	"github.com/viamrobotics/bldc/hal/fake"
	"github.com/viamrobotics/bldc/hal/spiadc"
	"github.com/viamrobotics/bldc/hal/sysfsgpio"
	"github.com/viamrobotics/bldc/logging"
)

type pinNames struct {
	inhA, inlA, inhB, inlB, inhC, inlC string
	enGate                             string
	hallA, hallB, hallC                string
	nFault, nOCTW                      string
	spiBus                             string
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, "bldcd:", err)
		os.Exit(1)
	}
}

func realMain() error {
	var (
		configPath = flag.String("config", "", "path to a KEY=VALUE config override file")
		levelName  = flag.String("log-level", "info", "log level: debug, info, warn, error")
		fakeHW     = flag.Bool("fake-hw", false, "use in-memory fake hardware instead of periph.io GPIO/SPI")
	)
	var pins pinNames
	flag.StringVar(&pins.inhA, "pin-inh-a", "GPIO5", "phase A high-side gate pin")
	flag.StringVar(&pins.inlA, "pin-inl-a", "GPIO6", "phase A low-side gate pin")
	flag.StringVar(&pins.inhB, "pin-inh-b", "GPIO12", "phase B high-side gate pin")
	flag.StringVar(&pins.inlB, "pin-inl-b", "GPIO13", "phase B low-side gate pin")
	flag.StringVar(&pins.inhC, "pin-inh-c", "GPIO16", "phase C high-side gate pin")
	flag.StringVar(&pins.inlC, "pin-inl-c", "GPIO17", "phase C low-side gate pin")
	flag.StringVar(&pins.enGate, "pin-en-gate", "GPIO22", "gate driver enable pin")
	flag.StringVar(&pins.hallA, "pin-hall-a", "GPIO23", "Hall sensor A pin")
	flag.StringVar(&pins.hallB, "pin-hall-b", "GPIO24", "Hall sensor B pin")
	flag.StringVar(&pins.hallC, "pin-hall-c", "GPIO25", "Hall sensor C pin")
	flag.StringVar(&pins.nFault, "pin-nfault", "GPIO27", "gate driver nFAULT pin")
	flag.StringVar(&pins.nOCTW, "pin-noctw", "GPIO26", "gate driver nOCTW pin")
	flag.StringVar(&pins.spiBus, "spi-bus", "SPI0.0", "SPI bus for the external ADC")
	flag.Parse()

	level, err := logging.LevelFromString(*levelName)
	if err != nil {
		return errors.Wrap(err, "parsing -log-level")
	}
	logger, err := logging.NewLogger("bldcd", level)
	if err != nil {
		return errors.Wrap(err, "constructing logger")
	}
	defer logger.Sync() //nolint:errcheck

	cfg := config.Default()
	if *configPath != "" {
		if err := config.LoadFile(&cfg, *configPath, logger); err != nil {
			return errors.Wrapf(err, "loading config %q", *configPath)
		}
	}

	var h app.HAL
	if *fakeHW {
		logger.Infow("using in-memory fake hardware")
		h = app.HAL{
			Driver:     fake.NewPhaseDriver(),
			HallReader: fake.NewHallReader(0b001),
			ADC:        fake.NewADC(),
			GateStatus: fake.NewGateDriverStatus(),
		}
	} else {
		var closeHW func()
		h, closeHW, err = buildPeriphHAL(pins, cfg)
		if err != nil {
			return errors.Wrap(err, "initializing periph.io hardware")
		}
		defer closeHW()
	}

	ctrl, err := app.New(cfg, h, logger)
	if err != nil {
		return errors.Wrap(err, "constructing controller")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctrl.Run(ctx)
	logger.Infow("controller running", "fast_loop_hz", cfg.FastLoopHz, "slow_loop_hz", cfg.SlowLoopHz)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infow("shutdown requested, stopping controller")
			return ctrl.Stop()
		case <-ticker.C:
			logger.Infow(ctrl.StatusLine())
		}
	}
}

func buildPeriphHAL(pins pinNames, cfg config.Config) (app.HAL, func(), error) {
	if _, err := host.Init(); err != nil {
		return app.HAL{}, nil, errors.Wrap(err, "periph host init")
	}

	lookupPWM := func(name string) (sysfsgpio.PWMPin, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, errors.Errorf("unknown GPIO pin %q", name)
		}
		return p, nil
	}
	lookupIn := func(name string) (sysfsgpio.DigitalIn, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, errors.Errorf("unknown GPIO pin %q", name)
		}
		if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return nil, errors.Wrapf(err, "configuring %q as input", name)
		}
		return p, nil
	}

	gates := sysfsgpio.GatePins{}
	var err error
	if gates.InhA, err = lookupPWM(pins.inhA); err != nil {
		return app.HAL{}, nil, err
	}
	if gates.InlA, err = lookupPWM(pins.inlA); err != nil {
		return app.HAL{}, nil, err
	}
	if gates.InhB, err = lookupPWM(pins.inhB); err != nil {
		return app.HAL{}, nil, err
	}
	if gates.InlB, err = lookupPWM(pins.inlB); err != nil {
		return app.HAL{}, nil, err
	}
	if gates.InhC, err = lookupPWM(pins.inhC); err != nil {
		return app.HAL{}, nil, err
	}
	if gates.InlC, err = lookupPWM(pins.inlC); err != nil {
		return app.HAL{}, nil, err
	}
	enGate, err := lookupPWM(pins.enGate)
	if err != nil {
		return app.HAL{}, nil, err
	}
	driver := sysfsgpio.NewDriver(gates, enGate, cfg.PWMFrequencyHz)

	hallA, err := lookupIn(pins.hallA)
	if err != nil {
		return app.HAL{}, nil, err
	}
	hallB, err := lookupIn(pins.hallB)
	if err != nil {
		return app.HAL{}, nil, err
	}
	hallC, err := lookupIn(pins.hallC)
	if err != nil {
		return app.HAL{}, nil, err
	}
	hallReader := sysfsgpio.NewHallReader(hallA, hallB, hallC)

	nFault, err := lookupIn(pins.nFault)
	if err != nil {
		return app.HAL{}, nil, err
	}
	nOCTW, err := lookupIn(pins.nOCTW)
	if err != nil {
		return app.HAL{}, nil, err
	}
	gateStatus := sysfsgpio.NewGateDriverStatus(nFault, nOCTW)

	port, err := spireg.Open(pins.spiBus)
	if err != nil {
		return app.HAL{}, nil, errors.Wrapf(err, "opening SPI bus %q", pins.spiBus)
	}
	conn, err := port.Connect(1*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		port.Close() //nolint:errcheck
		return app.HAL{}, nil, errors.Wrap(err, "connecting SPI ADC")
	}
	adc := spiadc.NewADC(conn)

	closeFn := func() {
		port.Close() //nolint:errcheck
	}

	return app.HAL{
		Driver:     driver,
		HallReader: hallReader,
		ADC:        adc,
		GateStatus: gateStatus,
	}, closeFn, nil
}

