//go:build !tinygo

package hid

import (
	"io"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/rice5941/nakuru/pkg/keys"
)

// ReportSize is the length of a boot keyboard input report: modifiers,
// reserved byte, six key slots.
const ReportSize = 8

// ReportDescriptor is the boot keyboard report descriptor for configuring a
// USB gadget function.
var ReportDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop Ctrls)
	0x09, 0x06, // Usage (Keyboard)
	0xa1, 0x01, // Collection (Application)
	0x05, 0x07, //   Usage Page (Kbrd/Keypad)
	0x19, 0xe0, //   Usage Minimum (0xE0)
	0x29, 0xe7, //   Usage Maximum (0xE7)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x01, //   Logical Maximum (1)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x08, //   Report Count (8)
	0x81, 0x02, //   Input (Data,Var,Abs)
	0x95, 0x01, //   Report Count (1)
	0x75, 0x08, //   Report Size (8)
	0x81, 0x01, //   Input (Const)
	0x95, 0x06, //   Report Count (6)
	0x75, 0x08, //   Report Size (8)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0xff, //   Logical Maximum (255)
	0x05, 0x07, //   Usage Page (Kbrd/Keypad)
	0x19, 0x00, //   Usage Minimum (0x00)
	0x29, 0xff, //   Usage Maximum (0xFF)
	0x81, 0x00, //   Input (Data,Array,Abs)
	0xc0, // End Collection
}

// Keyboard turns key edges into boot keyboard reports written to w. Press
// and Release are idempotent: an edge that does not change the report is not
// written. When all six slots are in use further keys are dropped.
type Keyboard struct {
	mu        sync.Mutex
	w         io.Writer
	keymap    Keymap
	slots     [6]uint8
	modifiers uint8
	log       *log.Entry
}

var _ keys.HID = (*Keyboard)(nil)

// NewKeyboard creates a Keyboard writing to w.
func NewKeyboard(w io.Writer, km Keymap) *Keyboard {
	return &Keyboard{
		w:      w,
		keymap: km,
		log:    log.WithField("component", "hid"),
	}
}

// Press adds the key to the report.
func (k *Keyboard) Press(id int) {
	k.mu.Lock()
	defer k.mu.Unlock()

	u, ok := k.keymap.Usage(id)
	if !ok {
		k.log.WithField("key", id).Warn("press of unmapped key")
		return
	}

	if u.IsModifier() {
		if k.modifiers&u.Modifier == u.Modifier {
			return
		}
		k.modifiers |= u.Modifier
		k.write()
		return
	}

	free := -1
	for i, code := range k.slots {
		if code == u.Code {
			return
		}
		if code == 0 && free < 0 {
			free = i
		}
	}
	if free < 0 {
		k.log.WithField("key", id).Warn("all report slots in use, dropping press")
		return
	}
	k.slots[free] = u.Code
	k.write()
}

// Release removes the key from the report.
func (k *Keyboard) Release(id int) {
	k.mu.Lock()
	defer k.mu.Unlock()

	u, ok := k.keymap.Usage(id)
	if !ok {
		return
	}

	if u.IsModifier() {
		if k.modifiers&u.Modifier == 0 {
			return
		}
		k.modifiers &^= u.Modifier
		k.write()
		return
	}

	for i, code := range k.slots {
		if code == u.Code {
			k.slots[i] = 0
			k.write()
			return
		}
	}
}

// Report returns the current report.
func (k *Keyboard) Report() [ReportSize]byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.report()
}

// Reset releases everything and writes an empty report.
func (k *Keyboard) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.slots = [6]uint8{}
	k.modifiers = 0
	k.write()
}

func (k *Keyboard) report() [ReportSize]byte {
	var r [ReportSize]byte
	r[0] = k.modifiers
	copy(r[2:], k.slots[:])
	return r
}

func (k *Keyboard) write() {
	r := k.report()
	if _, err := k.w.Write(r[:]); err != nil {
		k.log.WithError(err).Warn("failed to write report")
	}
}
