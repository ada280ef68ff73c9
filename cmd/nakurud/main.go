// Command nakurud runs the keypad on Linux: key levels from an MCP3008 over
// SPI, keystrokes to a USB HID gadget, diagnostics on a serial port or stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"

	"github.com/rice5941/nakuru/pkg/analog"
	"github.com/rice5941/nakuru/pkg/config"
	"github.com/rice5941/nakuru/pkg/diag"
	"github.com/rice5941/nakuru/pkg/engine"
	"github.com/rice5941/nakuru/pkg/hid"
	"github.com/rice5941/nakuru/pkg/keys"
	"github.com/rice5941/nakuru/pkg/link"
)

// diagStdio selects stdin/stdout for diagnostics.
const diagStdio = "-"

func main() {
	configPath := flag.String("config", "config.yaml", "Configuration file path")
	mock := flag.Bool("mock", false, "Simulated sensors, keystrokes are logged instead of sent")
	diagPort := flag.String("diag", "", `Diagnostics serial port ("-" for stdio, empty uses config)`)
	printDescriptor := flag.Bool("print-descriptor", false, "Print the HID report descriptor and exit")
	verbose := flag.Bool("v", false, "Verbose logging, including every keystroke")

	flag.Parse()

	if *printDescriptor {
		fmt.Printf("% x\n", hid.ReportDescriptor)
		return
	}
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: load config: %v", err)
	}
	if *diagPort != "" {
		cfg.Serial.Port = *diagPort
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: invalid config: %v", err)
	}

	if err := run(cfg, *mock, *verbose); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// daemon holds everything that needs closing.
type daemon struct {
	src      keys.AnalogSource
	hid      keys.HID
	keyboard *hid.Keyboard
	sim      *analog.Sim

	closers []io.Closer
}

func (d *daemon) Close() error {
	if d.keyboard != nil {
		d.keyboard.Reset()
	}
	var err error
	for i := len(d.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, d.closers[i].Close())
	}
	return err
}

func open(cfg *config.Config, mock, verbose bool) (*daemon, error) {
	km, err := hid.NewKeymap(cfg.Keys.Chars, cfg.Keys.ModifierIndex, cfg.Keys.Modifier)
	if err != nil {
		return nil, fmt.Errorf("key map: %w", err)
	}

	d := &daemon{}
	if mock {
		d.sim = analog.NewSim(link.SimConfig(cfg))
		d.src = d.sim
		d.hid = hid.NewLogger(km)
		return d, nil
	}

	channels := cfg.Analog.Channels
	if len(channels) == 0 {
		channels = analog.Channels(cfg.Keys.Count)
	}
	adc, err := analog.OpenMCP3008(cfg.Analog.SPIPort, physic.Frequency(cfg.Analog.SpeedHz)*physic.Hertz, channels)
	if err != nil {
		return nil, fmt.Errorf("open adc: %w", err)
	}
	d.src = adc
	d.closers = append(d.closers, adc)

	gadget, err := hid.OpenGadget(cfg.HID.Device)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("open hid gadget: %w", err), d.Close())
	}
	d.closers = append(d.closers, gadget)
	d.keyboard = hid.NewKeyboard(gadget, km)
	d.hid = d.keyboard
	if verbose {
		d.hid = hid.Multi{d.keyboard, hid.NewLogger(km)}
	}

	return d, nil
}

// openDiag returns the diagnostics transport, or nils when disabled.
func openDiag(cfg *config.Config) (io.Reader, io.WriteCloser, error) {
	switch cfg.Serial.Port {
	case "":
		return nil, nil, nil
	case diagStdio:
		return os.Stdin, nopCloser{os.Stdout}, nil
	}

	port, err := serial.Open(cfg.Serial.Port, &serial.Mode{BaudRate: cfg.Serial.Baud})
	if err != nil {
		return nil, nil, fmt.Errorf("open diagnostics port %s: %w", cfg.Serial.Port, err)
	}
	return port, port, nil
}

func run(cfg *config.Config, mock, verbose bool) (err error) {
	d, err := open(cfg, mock, verbose)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, d.Close())
	}()

	r, w, err := openDiag(cfg)
	if err != nil {
		return err
	}
	if w != nil {
		d.closers = append(d.closers, w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		in  <-chan []byte
		out io.Writer
	)
	obs := observers{newLogObserver(cfg)}
	if w != nil {
		dw := diag.NewDropWriter(w, cfg.Diagnostics.OutputBuffer)
		defer func() {
			err = multierr.Append(err, dw.Close())
			if dropped := dw.Dropped(); dropped > 0 {
				log.Warnf("dropped %d diagnostics writes", dropped)
			}
		}()
		in = engine.Pump(ctx, r, engine.DefaultInputBuffer)
		out = dw
		obs = append(obs, engine.NewTextObserver(dw, cfg.Analog.VRef, cfg.Analog.Resolution))
		log.Printf("diagnostics on %s", cfg.Serial.Port)
	}

	cal := keys.NewCalibrator(cfg.Calibration.StrokeMM, cfg.Calibration.ActivationMM, cfg.Calibration.Settle)
	cal.Prompt = func(p keys.Phase) {
		logPhase(p)
		if d.sim != nil {
			d.sim.Prompt(p)
		}
	}

	e := engine.New(keys.NewBoard(cfg.Keys.Count), d.src, d.hid, engine.Options{
		ResolvePeriod:   cfg.Timing.ResolvePeriod,
		ScanInterval:    cfg.Timing.ScanInterval,
		ScanReportAfter: cfg.Timing.ScanReportAfter,
		Diagnostics: diag.Options{
			TelemetryInterval: cfg.Diagnostics.TelemetryInterval,
			HeartbeatTimeout:  cfg.Diagnostics.HeartbeatTimeout,
		},
		Calibrator: cal,
		Observer:   obs,
	})

	log.Printf("started: keys=%d mock=%v", cfg.Keys.Count, mock)
	if err := e.Run(ctx, in, out); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("interrupted during calibration")
			return nil
		}
		return err
	}

	log.WithFields(log.Fields{
		"passes":      e.Passes(),
		"read_errors": e.ReadErrors(),
		"releases":    e.Releases(),
	}).Info("shutting down")
	return nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
