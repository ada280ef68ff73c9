//go:build tinygo

package main

import (
	"machine"
	"time"
)

const (
	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 10   // levels reported to the engine are 10-bit

	// Serial configuration
	// A frame of seven keys is ~230 bytes; at the 10ms telemetry interval
	// that is 23,000 bytes/sec, which the USB CDC port carries easily.
	UART_BAUD_RATE = 115200

	// Input polling interval for the diagnostics port
	SERIAL_POLL_INTERVAL = time.Millisecond
)

// Hall sensor outputs, one per key, in key id order.
var keyPins = [...]machine.Pin{
	machine.A0,
	machine.A1,
	machine.A2,
	machine.A3,
	machine.A4,
	machine.A5,
	machine.A6,
}

// Status LED, lit while calibration wants the keys held down.
const PIN_LED = machine.LED
