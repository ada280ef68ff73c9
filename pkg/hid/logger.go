//go:build !tinygo

package hid

import (
	log "github.com/sirupsen/logrus"

	"github.com/rice5941/nakuru/pkg/keys"
)

// Logger is a HID that only logs edges. It stands in for a real device when
// running without a USB gadget.
type Logger struct {
	keymap Keymap
	log    *log.Entry
}

var _ keys.HID = (*Logger)(nil)

// NewLogger creates a Logger naming keys after km.
func NewLogger(km Keymap) *Logger {
	return &Logger{keymap: km, log: log.WithField("component", "hid")}
}

func (l *Logger) Press(id int) {
	l.log.WithFields(log.Fields{"key": id, "name": l.keymap.Name(id)}).Info("press")
}

func (l *Logger) Release(id int) {
	l.log.WithFields(log.Fields{"key": id, "name": l.keymap.Name(id)}).Info("release")
}

// Multi fans edges out to several HIDs.
type Multi []keys.HID

var _ keys.HID = Multi(nil)

func (m Multi) Press(id int) {
	for _, h := range m {
		h.Press(id)
	}
}

func (m Multi) Release(id int) {
	for _, h := range m {
		h.Release(id)
	}
}
