package main

import (
	"flag"
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	log "github.com/sirupsen/logrus"

	"github.com/rice5941/nakuru/pkg/config"
	"github.com/rice5941/nakuru/pkg/link"
	"github.com/rice5941/nakuru/pkg/scope"
	"github.com/rice5941/nakuru/pkg/trace"
)

// updateInterval throttles scope redraws to ~60 FPS.
const updateInterval = 16 * time.Millisecond

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use an in-process simulated keypad instead of the serial port")
		windowFlag = flag.Duration("window", trace.DefaultWindow, "Time window shown")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	application := app.NewWithID("com.rice5941.nakuru")

	window := application.NewWindow("Nakuru Keypad Scope")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		recorder:   trace.New(*windowFlag),
		window:     window,
		useMock:    *mockFlag,
	}

	toolbar := createToolbar(state)

	state.scopeWidget = scope.New(*windowFlag, cfg.Analog.Resolution)

	window.SetContent(container.NewBorder(toolbar, nil, nil, nil, state.scopeWidget))
	window.SetOnClosed(func() {
		closeChain(state.chain)
	})
	window.ShowAndRun()
}

// chain tracks the running pipeline for graceful shutdown.
type chain struct {
	device       link.Device
	recorderDone chan struct{} // closed when the recorder goroutine exits
}

// appState holds the application state.
type appState struct {
	cfg         *config.Config
	configPath  string
	device      link.Device
	recorder    *trace.Recorder
	scopeWidget *scope.ScopeWidget
	window      fyne.Window
	connectBtn  *widget.Button
	keyBtns     *fyne.Container
	status      *widget.Label
	useMock     bool
	keys        keyStates
	chain       *chain // nil if not connected

	// Throttling for scope updates
	lastUpdateTime time.Time
	updateMu       sync.Mutex
}

// createToolbar creates the toolbar with Connect and Settings buttons, the
// stream status and a toggle per key.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	state.status = widget.NewLabel("disconnected")
	state.keyBtns = container.NewHBox()
	createKeyButtons(state)

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(connectBtn, settingsBtn, state.status),
		state.keyBtns,
		nil,
	)
}

// closeChain closes the device, which closes its messages channel, and waits
// for the recorder to drain it.
func closeChain(c *chain) {
	if c == nil {
		return
	}
	if c.device != nil {
		if err := c.device.Close(); err != nil {
			log.WithError(err).Warn("close device")
		}
	}
	if c.recorderDone != nil {
		<-c.recorderDone
	}
}

func (state *appState) deviceName() string {
	if state.useMock {
		return "simulated keypad"
	}
	return state.cfg.Serial.Port
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.device != nil && state.device.IsConnected() {
		closeChain(state.chain)
		state.chain = nil
		state.device = nil
		state.keys.reset()
		updateKeyButtons(state)
		state.status.SetText("disconnected")
		log.Infof("Disconnected from %s", state.deviceName())
		return
	}

	opts := link.Options{
		HeartbeatInterval: state.cfg.Diagnostics.HeartbeatInterval,
		Strict:            state.cfg.Diagnostics.StrictFrames,
	}
	var device link.Device
	if state.useMock {
		device = link.NewLoopback(state.cfg, nil, opts)
	} else {
		device = link.New(state.cfg.Serial.Port, state.cfg.Serial.Baud, opts)
	}

	if err := device.Connect(); err != nil {
		dialog.ShowError(fmt.Errorf("failed to connect to %s: %w", state.deviceName(), err), state.window)
		return
	}
	state.device = device
	state.status.SetText("connected")
	log.Infof("Connected to %s", state.deviceName())

	state.recorder.Reset()
	state.recorder.ResetShutdown()

	// Register once; the recorder outlives connections.
	state.updateMu.Lock()
	first := state.lastUpdateTime.IsZero()
	if first {
		state.lastUpdateTime = time.Now()
	}
	state.updateMu.Unlock()
	if first {
		state.recorder.OnUpdate(func(snap trace.Snapshot) {
			onSnapshot(state, snap)
		})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		state.recorder.ProcessMessages(device.Messages())
	}()

	state.chain = &chain{device: device, recorderDone: done}
}

// onSnapshot runs on the recorder goroutine for every message.
func onSnapshot(state *appState, snap trace.Snapshot) {
	updateKeyStatesFromSnapshot(state, snap)

	state.updateMu.Lock()
	now := time.Now()
	if now.Sub(state.lastUpdateTime) < updateInterval {
		state.updateMu.Unlock()
		return
	}
	state.lastUpdateTime = now
	state.updateMu.Unlock()

	fyne.Do(func() {
		state.scopeWidget.UpdateData(snap)
		if snap.Status != "" {
			state.status.SetText(snap.Status)
		}
	})
}
