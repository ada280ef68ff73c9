//go:build tinygo

//go:generate tinygo flash -target=grandcentral-m4

package main

import (
	"context"
	"errors"
	"machine"
	"machine/usb/hid/keyboard"
	"time"

	"github.com/rice5941/nakuru/pkg/engine"
	"github.com/rice5941/nakuru/pkg/hid"
	"github.com/rice5941/nakuru/pkg/keys"
)

var (
	serial = machine.Serial

	errNoKey = errors.New("no such key")
)

// adcSource reads the hall sensors. TinyGo scales every reading to 16 bits.
type adcSource struct {
	adcs  [len(keyPins)]machine.ADC
	shift uint
}

func (s *adcSource) Read(id int) (uint16, error) {
	if id < 0 || id >= len(s.adcs) {
		return 0, errNoKey
	}
	return s.adcs[id].Get() >> s.shift, nil
}

// usbKeyboard sends key edges as USB HID keystrokes.
type usbKeyboard struct {
	kb *keyboard.Keyboard
	km hid.Keymap
}

func (k *usbKeyboard) keycode(id int) (keyboard.Keycode, bool) {
	u, ok := k.km.Usage(id)
	if !ok {
		return 0, false
	}
	if u.IsModifier() {
		return keyboard.Keycode(0xE000 | uint16(u.Modifier)), true
	}
	return keyboard.Keycode(0xF000 | uint16(u.Code)), true
}

func (k *usbKeyboard) Press(id int) {
	if code, ok := k.keycode(id); ok {
		k.kb.Down(code)
	}
}

func (k *usbKeyboard) Release(id int) {
	if code, ok := k.keycode(id); ok {
		k.kb.Up(code)
	}
}

func main() {
	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	machine.InitADC()
	src := &adcSource{shift: 16 - ADC_RESOLUTION}
	for i, pin := range keyPins {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
		src.adcs[i] = machine.ADC{Pin: pin}
		src.adcs[i].Configure(machine.ADCConfig{
			Reference:  ADC_REFERENCE_MV,
			Resolution: ADC_RESOLUTION,
		})
	}

	serial.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	kb := &usbKeyboard{kb: keyboard.Port(), km: hid.DefaultKeymap()}

	cal := keys.NewCalibrator(keys.DefaultStroke, keys.DefaultActivation, keys.DefaultSettle)
	cal.Prompt = prompt

	e := engine.New(keys.NewBoard(len(keyPins)), src, kb, engine.Options{
		Calibrator: cal,
		Observer:   engine.NewTextObserver(serial, ADC_REFERENCE_MV/1000.0, ADC_RESOLUTION),
	})

	in := make(chan []byte, engine.DefaultInputBuffer)
	go pollSerial(in)

	if err := e.Run(context.Background(), in, serial); err != nil {
		println("engine stopped:", err.Error())
	}
}

// prompt tells the user what calibration needs: the LED is lit while the
// keys must be held down.
func prompt(p keys.Phase) {
	switch p {
	case keys.PhaseTopDead:
		println("calibrating, keep all keys released")
	case keys.PhaseSettle:
		println("press and hold all keys")
		PIN_LED.High()
	case keys.PhaseDone:
		println("calibration done")
		PIN_LED.Low()
	}
}

// pollSerial moves received bytes to the engine. The port never blocks, so it
// is polled.
func pollSerial(in chan<- []byte) {
	for {
		n := serial.Buffered()
		if n == 0 {
			time.Sleep(SERIAL_POLL_INTERVAL)
			continue
		}
		p := make([]byte, n)
		for i := range p {
			b, err := serial.ReadByte()
			if err != nil {
				p = p[:i]
				break
			}
			p[i] = b
		}
		select {
		case in <- p:
		default:
		}
	}
}
