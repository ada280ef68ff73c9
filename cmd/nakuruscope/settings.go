package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/rice5941/nakuru/pkg/link"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createKeysTab(state),
		createCalibrationTab(state),
		createDiagnosticsTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// save validates and writes the configuration, reporting problems in a dialog.
func save(state *appState) bool {
	if err := state.cfg.Validate(); err != nil {
		dialog.ShowError(fmt.Errorf("invalid settings: %w", err), state.window)
		return false
	}
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return false
	}
	return true
}

// reconnect restarts the pipeline if it is running so new settings apply.
func reconnect(state *appState) {
	if state.device == nil || !state.device.IsConnected() {
		return
	}
	handleConnect(state) // disconnect
	handleConnect(state)
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := link.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // display name -> port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = port.Description
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	// Add current port if not in list
	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Serial.Baud))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
		},
		OnSubmit: func() {
			oldPort, oldBaud := state.cfg.Serial.Port, state.cfg.Serial.Baud
			if portSelect.Selected != "" {
				selectedPort := portMap[portSelect.Selected]
				if selectedPort == "" {
					selectedPort = portSelect.Selected
				}
				state.cfg.Serial.Port = selectedPort
			}
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil {
				state.cfg.Serial.Baud = baud
			}
			if !save(state) {
				return
			}
			if !state.useMock && (oldPort != state.cfg.Serial.Port || oldBaud != state.cfg.Serial.Baud) {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createKeysTab creates the Keys configuration tab.
func createKeysTab(state *appState) *container.TabItem {
	countEntry := widget.NewEntry()
	countEntry.SetText(strconv.Itoa(state.cfg.Keys.Count))

	charsEntry := widget.NewEntry()
	charsEntry.SetText(state.cfg.Keys.Chars)

	modIndexEntry := widget.NewEntry()
	modIndexEntry.SetText(strconv.Itoa(state.cfg.Keys.ModifierIndex))

	modifierEntry := widget.NewEntry()
	modifierEntry.SetText(state.cfg.Keys.Modifier)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Key Count", Widget: countEntry},
			{Text: "Characters", Widget: charsEntry},
			{Text: "Modifier Key (-1=none)", Widget: modIndexEntry},
			{Text: "Modifier", Widget: modifierEntry},
		},
		OnSubmit: func() {
			if n, err := strconv.Atoi(countEntry.Text); err == nil {
				state.cfg.Keys.Count = n
			}
			state.cfg.Keys.Chars = charsEntry.Text
			if i, err := strconv.Atoi(modIndexEntry.Text); err == nil {
				state.cfg.Keys.ModifierIndex = i
			}
			state.cfg.Keys.Modifier = modifierEntry.Text
			if !save(state) {
				return
			}
			createKeyButtons(state)
			if state.useMock {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Keys", form)
}

// createCalibrationTab creates the Calibration configuration tab. The
// values apply to the simulated keypad; real keypads carry their own.
func createCalibrationTab(state *appState) *container.TabItem {
	strokeEntry := widget.NewEntry()
	strokeEntry.SetText(fmt.Sprintf("%.2f", state.cfg.Calibration.StrokeMM))

	activationEntry := widget.NewEntry()
	activationEntry.SetText(fmt.Sprintf("%.2f", state.cfg.Calibration.ActivationMM))

	settleEntry := widget.NewEntry()
	settleEntry.SetText(state.cfg.Calibration.Settle.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Stroke (mm)", Widget: strokeEntry},
			{Text: "Activation (mm above bottom)", Widget: activationEntry},
			{Text: "Settle Time", Widget: settleEntry},
		},
		OnSubmit: func() {
			if v, err := strconv.ParseFloat(strokeEntry.Text, 32); err == nil {
				state.cfg.Calibration.StrokeMM = float32(v)
			}
			if v, err := strconv.ParseFloat(activationEntry.Text, 32); err == nil {
				state.cfg.Calibration.ActivationMM = float32(v)
			}
			if d, err := time.ParseDuration(settleEntry.Text); err == nil {
				state.cfg.Calibration.Settle = d
			}
			if save(state) && state.useMock {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Calibration", form)
}

// createDiagnosticsTab creates the Diagnostics configuration tab.
func createDiagnosticsTab(state *appState) *container.TabItem {
	heartbeatEntry := widget.NewEntry()
	heartbeatEntry.SetText(state.cfg.Diagnostics.HeartbeatInterval.String())

	telemetryEntry := widget.NewEntry()
	telemetryEntry.SetText(state.cfg.Diagnostics.TelemetryInterval.String())

	strictCheck := widget.NewCheck("", nil)
	strictCheck.SetChecked(state.cfg.Diagnostics.StrictFrames)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Heartbeat Interval", Widget: heartbeatEntry},
			{Text: "Telemetry Interval (simulated)", Widget: telemetryEntry},
			{Text: "Validate Frames", Widget: strictCheck},
		},
		OnSubmit: func() {
			if d, err := time.ParseDuration(heartbeatEntry.Text); err == nil {
				state.cfg.Diagnostics.HeartbeatInterval = d
			}
			if d, err := time.ParseDuration(telemetryEntry.Text); err == nil {
				state.cfg.Diagnostics.TelemetryInterval = d
			}
			state.cfg.Diagnostics.StrictFrames = strictCheck.Checked
			if save(state) {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Diagnostics", form)
}

// createMockTab creates the simulated keypad configuration tab.
func createMockTab(state *appState) *container.TabItem {
	topEntry := widget.NewEntry()
	topEntry.SetText(strconv.Itoa(int(state.cfg.Mock.Top)))

	bottomEntry := widget.NewEntry()
	bottomEntry.SetText(strconv.Itoa(int(state.cfg.Mock.Bottom)))

	noiseEntry := widget.NewEntry()
	noiseEntry.SetText(strconv.Itoa(int(state.cfg.Mock.Noise)))

	periodEntry := widget.NewEntry()
	periodEntry.SetText(state.cfg.Mock.PressPeriod.String())

	durationEntry := widget.NewEntry()
	durationEntry.SetText(state.cfg.Mock.PressDuration.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Top Level", Widget: topEntry},
			{Text: "Bottom Level", Widget: bottomEntry},
			{Text: "Noise (levels)", Widget: noiseEntry},
			{Text: "Press Period", Widget: periodEntry},
			{Text: "Press Duration", Widget: durationEntry},
		},
		OnSubmit: func() {
			if v, err := strconv.ParseUint(topEntry.Text, 10, 16); err == nil {
				state.cfg.Mock.Top = uint16(v)
			}
			if v, err := strconv.ParseUint(bottomEntry.Text, 10, 16); err == nil {
				state.cfg.Mock.Bottom = uint16(v)
			}
			if v, err := strconv.ParseUint(noiseEntry.Text, 10, 16); err == nil {
				state.cfg.Mock.Noise = uint16(v)
			}
			if d, err := time.ParseDuration(periodEntry.Text); err == nil {
				state.cfg.Mock.PressPeriod = d
			}
			if d, err := time.ParseDuration(durationEntry.Text); err == nil {
				state.cfg.Mock.PressDuration = d
			}
			if save(state) && state.useMock {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Mock", form)
}
