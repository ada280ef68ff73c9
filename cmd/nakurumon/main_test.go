package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rice5941/nakuru/pkg/diag"
	"github.com/rice5941/nakuru/pkg/keys"
	"github.com/rice5941/nakuru/pkg/link"
	"github.com/rice5941/nakuru/pkg/publish"
)

func frame(ms uint64, readings ...diag.KeyReading) link.Message {
	return link.Message{Message: diag.Message{Frame: &diag.Frame{Type: diag.FrameType, Timestamp: ms, Keys: readings}}}
}

func messages() chan link.Message {
	cal := keys.Calibration{ID: 0, TopDead: 600, BottomDead: 400, DistanceRate: 80, Threshold: 480}
	bad := keys.Calibration{ID: 1, TopDead: 400, BottomDead: 600, Err: keys.ErrCalibrationInconsistent}

	ch := make(chan link.Message, 10)
	ch <- link.Message{Calibration: &cal}
	ch <- link.Message{Calibration: &bad}
	ch <- link.Message{Message: diag.Message{Status: diag.StatusStarted}}
	ch <- frame(10, diag.KeyReading{ID: 0, AD: 600}, diag.KeyReading{ID: 1, AD: 0})
	ch <- frame(20, diag.KeyReading{ID: 0, AD: 470, Pressed: true}, diag.KeyReading{ID: 1, AD: 0})
	ch <- frame(30, diag.KeyReading{ID: 0, AD: 460, Pressed: true}, diag.KeyReading{ID: 1, AD: 0})
	ch <- frame(40, diag.KeyReading{ID: 0, AD: 600}, diag.KeyReading{ID: 1, AD: 0})
	ch <- link.Message{ScanRate: 1234.5}
	close(ch)
	return ch
}

func TestRunLoop_KeyChanges(t *testing.T) {
	var buf bytes.Buffer
	runLoop(messages(), &buf, false, nil)

	assert.Equal(t, ""+
		"key 0: top 600 bottom 400 rate 80.00/mm threshold 480\n"+
		"key 1: top 400 bottom 600: calibration inconsistent\n"+
		"status: started\n"+
		"      10ms pressed: []\n"+
		"      20ms pressed: [0]\n"+
		"      40ms pressed: []\n"+
		"scan rate: 1234.5Hz\n",
		buf.String())
}

func TestRunLoop_AllFrames(t *testing.T) {
	var buf bytes.Buffer
	runLoop(messages(), &buf, true, nil)

	assert.Contains(t, buf.String(), "      20ms 0:470* 1:0\n")
	assert.Contains(t, buf.String(), "      30ms 0:460* 1:0\n")
}

func TestRunLoop_Bridge(t *testing.T) {
	pub := publish.NewFakePublisher()
	var buf bytes.Buffer
	runLoop(messages(), &buf, false, publish.NewBridge(pub, -1))

	edges, frames := pub.Snapshot()
	require.Len(t, edges, 2)
	assert.True(t, edges[0].Pressed)
	assert.False(t, edges[1].Pressed)
	assert.Empty(t, frames)
	assert.Len(t, pub.Calibrations, 2)
	require.Len(t, pub.Statuses, 2)
	assert.Equal(t, publish.Online, pub.Statuses[0].Status)
	assert.Equal(t, diag.StatusStarted, pub.Statuses[1].Status)
}
