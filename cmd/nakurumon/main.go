// Command nakurumon streams diagnostics from a keypad, prints them and
// optionally republishes them to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/rice5941/nakuru/pkg/config"
	"github.com/rice5941/nakuru/pkg/link"
	"github.com/rice5941/nakuru/pkg/publish"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Configuration file path")
	port := flag.String("p", "", "Serial port override")
	mock := flag.Bool("mock", false, "Use an in-process simulated keypad")
	broker := flag.String("broker", "", "MQTT broker override (empty uses config, \"off\" disables)")
	frames := flag.Bool("frames", false, "Print every frame instead of key changes only")
	listPorts := flag.Bool("list", false, "List serial ports and exit")
	verbose := flag.Bool("v", false, "Verbose logging")

	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	if *listPorts {
		if err := printPorts(os.Stdout); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: load config: %v", err)
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	switch *broker {
	case "":
	case "off":
		cfg.MQTT.Broker = ""
	default:
		cfg.MQTT.Broker = *broker
	}

	if err := run(cfg, *mock, *frames); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func printPorts(w io.Writer) error {
	ports, err := link.Ports()
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Fprintln(w, p.Description)
	}
	return nil
}

func run(cfg *config.Config, mock, printFrames bool) error {
	opts := link.Options{
		HeartbeatInterval: cfg.Diagnostics.HeartbeatInterval,
		Strict:            cfg.Diagnostics.StrictFrames,
	}

	var device link.Device
	if mock {
		device = link.NewLoopback(cfg, nil, opts)
	} else {
		device = link.New(cfg.Serial.Port, cfg.Serial.Baud, opts)
	}
	if err := device.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	var bridge *publish.Bridge
	if cfg.MQTT.Broker != "" {
		pub, err := publish.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			device.Close()
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer pub.Close()
		bridge = publish.NewBridge(pub, cfg.MQTT.FrameInterval)
		log.Printf("publishing to %s under %s", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Printf("shutting down")
		if err := device.Close(); err != nil {
			log.WithError(err).Warn("close device")
		}
	}()

	runLoop(device.Messages(), os.Stdout, printFrames, bridge)
	return nil
}

// runLoop prints messages until the channel is closed. When a bridge is set
// every message is also handed to it on its own goroutine, so a slow broker
// never stalls the printer.
func runLoop(msgs <-chan link.Message, w io.Writer, printFrames bool, bridge *publish.Bridge) {
	p := printer{w: w, all: printFrames}

	var (
		tee  chan link.Message
		done chan struct{}
	)
	if bridge != nil {
		tee = make(chan link.Message, link.DefaultBufferSize)
		done = make(chan struct{})
		go func() {
			defer close(done)
			bridge.Run(context.Background(), tee)
		}()
	}

	for m := range msgs {
		p.print(m)
		if tee == nil {
			continue
		}
		select {
		case tee <- m:
		default:
			log.Debug("bridge behind, dropping message")
		}
	}

	if tee != nil {
		close(tee)
		<-done
	}
}

// printer writes one line per interesting message.
type printer struct {
	w       io.Writer
	all     bool
	seen    bool
	pressed string
}

func (p *printer) print(m link.Message) {
	switch {
	case m.Frame != nil:
		line := pressedKeys(m)
		if !p.all && p.seen && line == p.pressed {
			return
		}
		p.seen = true
		p.pressed = line
		if p.all {
			fmt.Fprintf(p.w, "%8dms %s\n", m.Frame.Timestamp, levels(m))
			return
		}
		fmt.Fprintf(p.w, "%8dms pressed: [%s]\n", m.Frame.Timestamp, line)
	case m.Status != "":
		fmt.Fprintf(p.w, "status: %s\n", m.Status)
	case m.Calibration != nil:
		c := m.Calibration
		if c.Err != nil {
			fmt.Fprintf(p.w, "key %d: top %d bottom %d: %v\n", c.ID, c.TopDead, c.BottomDead, c.Err)
			return
		}
		fmt.Fprintf(p.w, "key %d: top %d bottom %d rate %.2f/mm threshold %d\n", c.ID, c.TopDead, c.BottomDead, c.DistanceRate, c.Threshold)
	case m.ScanRate > 0:
		fmt.Fprintf(p.w, "scan rate: %.1fHz\n", m.ScanRate)
	}
}

func pressedKeys(m link.Message) string {
	var ids []int
	for _, k := range m.Frame.Keys {
		if k.Pressed {
			ids = append(ids, k.ID)
		}
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, " ")
}

func levels(m link.Message) string {
	parts := make([]string, len(m.Frame.Keys))
	for i, k := range m.Frame.Keys {
		mark := ""
		if k.Pressed {
			mark = "*"
		}
		parts[i] = fmt.Sprintf("%d:%d%s", k.ID, k.AD, mark)
	}
	return strings.Join(parts, " ")
}
