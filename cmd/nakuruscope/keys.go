package main

import (
	"fmt"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
	log "github.com/sirupsen/logrus"

	"github.com/rice5941/nakuru/pkg/hid"
	"github.com/rice5941/nakuru/pkg/trace"
)

// keyStates mirrors which keys the keypad reports pressed and which traces
// are hidden.
type keyStates struct {
	mu      sync.Mutex
	pressed map[int]bool
	hidden  map[int]bool
}

func (k *keyStates) reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pressed = nil
}

// update stores the pressed state of the latest points and reports whether
// anything changed.
func (k *keyStates) update(snap trace.Snapshot) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.pressed == nil {
		k.pressed = make(map[int]bool)
	}
	changed := false
	for _, id := range snap.Keys {
		pts := snap.Series[id]
		if len(pts) == 0 {
			continue
		}
		p := pts[len(pts)-1].Pressed
		if k.pressed[id] != p {
			k.pressed[id] = p
			changed = true
		}
	}
	return changed
}

func (k *keyStates) isPressed(id int) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pressed[id]
}

// toggle flips the visibility of a trace and returns the new state.
func (k *keyStates) toggle(id int) (visible bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.hidden == nil {
		k.hidden = make(map[int]bool)
	}
	k.hidden[id] = !k.hidden[id]
	return !k.hidden[id]
}

// createKeyButtons adds one button per configured key, labelled with the
// character it types. Clicking a button hides or shows its trace.
func createKeyButtons(state *appState) {
	km, err := hid.NewKeymap(state.cfg.Keys.Chars, state.cfg.Keys.ModifierIndex, state.cfg.Keys.Modifier)
	if err != nil {
		log.WithError(err).Warn("invalid key map, labelling keys by id")
	}

	state.keyBtns.RemoveAll()
	for id := 0; id < state.cfg.Keys.Count; id++ {
		btn := widget.NewButton(fmt.Sprintf("%d:%s", id, km.Name(id)), func() {
			state.scopeWidget.SetVisible(id, state.keys.toggle(id))
		})
		state.keyBtns.Add(btn)
	}
	updateKeyButtons(state)
}

// updateKeyStatesFromSnapshot refreshes the buttons when a key changes state.
func updateKeyStatesFromSnapshot(state *appState, snap trace.Snapshot) {
	if !state.keys.update(snap) {
		return
	}
	fyne.Do(func() {
		updateKeyButtons(state)
	})
}

// updateKeyButtons highlights the buttons of pressed keys.
func updateKeyButtons(state *appState) {
	for id, obj := range state.keyBtns.Objects {
		btn, ok := obj.(*widget.Button)
		if !ok {
			continue
		}
		if state.keys.isPressed(id) {
			btn.Importance = widget.HighImportance
		} else {
			btn.Importance = widget.MediumImportance
		}
		btn.Refresh()
	}
}
