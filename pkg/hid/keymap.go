// Package hid maps key ids to USB HID keyboard usages and writes boot
// keyboard reports.
package hid

import (
	"fmt"
	"strings"
)

// Default mapping: keys 0..5 type '0'..'5', key 6 is left Ctrl.
const (
	DefaultChars         = "0123456"
	DefaultModifierIndex = 6
	DefaultModifier      = "left_ctrl"
)

// Modifier bits of the boot report's first byte.
const (
	ModLeftCtrl uint8 = 1 << iota
	ModLeftShift
	ModLeftAlt
	ModLeftGUI
	ModRightCtrl
	ModRightShift
	ModRightAlt
	ModRightGUI
)

var modifierNames = [8]string{
	"left_ctrl", "left_shift", "left_alt", "left_gui",
	"right_ctrl", "right_shift", "right_alt", "right_gui",
}

var modifiers = map[string]uint8{
	"ctrl":        ModLeftCtrl,
	"left_ctrl":   ModLeftCtrl,
	"shift":       ModLeftShift,
	"left_shift":  ModLeftShift,
	"alt":         ModLeftAlt,
	"left_alt":    ModLeftAlt,
	"gui":         ModLeftGUI,
	"left_gui":    ModLeftGUI,
	"right_ctrl":  ModRightCtrl,
	"right_shift": ModRightShift,
	"right_alt":   ModRightAlt,
	"right_gui":   ModRightGUI,
}

// Usage is what one key sends: either a keyboard page usage code or a set of
// modifier bits.
type Usage struct {
	Code     uint8
	Modifier uint8
}

// IsModifier reports whether the usage only sets modifier bits.
func (u Usage) IsModifier() bool {
	return u.Modifier != 0
}

// Keymap assigns a Usage to every key id.
type Keymap struct {
	usages []Usage
	chars  []rune
}

// NewKeymap builds a map for len(chars) keys: key i types chars[i], except
// modifierIndex which sends modifier instead. A negative modifierIndex
// disables the modifier key.
func NewKeymap(chars string, modifierIndex int, modifier string) (Keymap, error) {
	runes := []rune(chars)
	km := Keymap{
		usages: make([]Usage, len(runes)),
		chars:  runes,
	}

	for i, r := range runes {
		if i == modifierIndex {
			bit, ok := modifiers[strings.ToLower(modifier)]
			if !ok {
				return Keymap{}, fmt.Errorf("key %d: unknown modifier %q", i, modifier)
			}
			km.usages[i] = Usage{Modifier: bit}
			continue
		}
		code, ok := UsageCode(r)
		if !ok {
			return Keymap{}, fmt.Errorf("key %d: no usage for %q", i, r)
		}
		km.usages[i] = Usage{Code: code}
	}
	if modifierIndex >= len(runes) {
		return Keymap{}, fmt.Errorf("modifier index %d out of range for %d keys", modifierIndex, len(runes))
	}

	return km, nil
}

// DefaultKeymap returns the seven key layout.
func DefaultKeymap() Keymap {
	km, err := NewKeymap(DefaultChars, DefaultModifierIndex, DefaultModifier)
	if err != nil {
		panic(err)
	}
	return km
}

// Len returns the number of mapped keys.
func (m Keymap) Len() int {
	return len(m.usages)
}

// Usage returns the usage of a key id.
func (m Keymap) Usage(id int) (Usage, bool) {
	if id < 0 || id >= len(m.usages) {
		return Usage{}, false
	}
	return m.usages[id], true
}

// Name returns a printable name for a key id.
func (m Keymap) Name(id int) string {
	u, ok := m.Usage(id)
	if !ok {
		return fmt.Sprintf("key%d", id)
	}
	if u.IsModifier() {
		for i, name := range modifierNames {
			if u.Modifier&(1<<i) != 0 {
				return name
			}
		}
	}
	return string(m.chars[id])
}

// UsageCode returns the keyboard page usage for an unshifted US layout
// character.
func UsageCode(r rune) (uint8, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return uint8(0x04 + r - 'a'), true
	case r >= 'A' && r <= 'Z':
		return uint8(0x04 + r - 'A'), true
	case r >= '1' && r <= '9':
		return uint8(0x1e + r - '1'), true
	case r == '0':
		return 0x27, true
	}

	switch r {
	case '\n':
		return 0x28, true
	case '\t':
		return 0x2b, true
	case ' ':
		return 0x2c, true
	case '-':
		return 0x2d, true
	case '=':
		return 0x2e, true
	case '[':
		return 0x2f, true
	case ']':
		return 0x30, true
	case '\\':
		return 0x31, true
	case ';':
		return 0x33, true
	case '\'':
		return 0x34, true
	case '`':
		return 0x35, true
	case ',':
		return 0x36, true
	case '.':
		return 0x37, true
	case '/':
		return 0x38, true
	}
	return 0, false
}
