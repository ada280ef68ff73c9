package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rice5941/nakuru/pkg/diag"
	"github.com/rice5941/nakuru/pkg/keys"
	"github.com/rice5941/nakuru/pkg/link"
)

var received = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func frameMsg(ms uint64, readings ...diag.KeyReading) link.Message {
	return link.Message{
		Received: received,
		Message:  diag.Message{Frame: &diag.Frame{Type: diag.FrameType, Timestamp: ms, Keys: readings}},
	}
}

func TestFormatEdge(t *testing.T) {
	payload, err := FormatEdge(Edge{Key: 3, Pressed: true, AD: 470, Uptime: 1500 * time.Millisecond, At: received})
	require.NoError(t, err)

	var parsed EdgePayload
	require.NoError(t, json.Unmarshal(payload, &parsed))
	assert.Equal(t, EdgePayload{Timestamp: "2026-10-19T12:00:00Z", Key: 3, Event: "PRESS", AD: 470, UptimeMS: 1500}, parsed)

	payload, err = FormatEdge(Edge{Key: 3, At: received})
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"event":"RELEASE"`)
}

func TestFormatCalibration(t *testing.T) {
	tests := []struct {
		name string
		cal  keys.Calibration
		want string
	}{
		{
			name: "valid",
			cal:  keys.Calibration{ID: 0, TopDead: 600, BottomDead: 400, DistanceRate: 80, Threshold: 480},
			want: `{"key":0,"top_dead":600,"bottom_dead":400,"distance_rate":80,"threshold":480,"valid":true}`,
		},
		{
			name: "inconsistent",
			cal:  keys.Calibration{ID: 1, TopDead: 400, BottomDead: 600, Err: keys.ErrCalibrationInconsistent},
			want: `{"key":1,"top_dead":400,"bottom_dead":600,"distance_rate":0,"threshold":0,"valid":false,"error":"calibration inconsistent"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := FormatCalibration(tt.cal)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(payload))
		})
	}
}

func TestFormatFrame(t *testing.T) {
	payload, err := FormatFrame(diag.Frame{Type: diag.FrameType, Timestamp: 10, Keys: []diag.KeyReading{{ID: 0, AD: 512}}})
	require.NoError(t, err)
	assert.NoError(t, link.Validate(payload), "frames are republished in the keypad format")
}

func TestFormatStatus(t *testing.T) {
	payload, err := FormatStatus(Status{At: received, Status: Offline})
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":"2026-10-19T12:00:00Z","status":"offline"}`, string(payload))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "nakuru/keys", join("nakuru", TopicKeys))
	assert.Equal(t, "keys", join("", TopicKeys))
}

func TestBridge_Edges(t *testing.T) {
	pub := NewFakePublisher()
	b := NewBridge(pub, -1)

	b.Handle(frameMsg(10, diag.KeyReading{ID: 0, AD: 600}, diag.KeyReading{ID: 1, AD: 600}))
	b.Handle(frameMsg(20, diag.KeyReading{ID: 0, AD: 470, Pressed: true}, diag.KeyReading{ID: 1, AD: 600}))
	b.Handle(frameMsg(30, diag.KeyReading{ID: 0, AD: 400, Pressed: true}, diag.KeyReading{ID: 1, AD: 600}))
	b.Handle(frameMsg(40, diag.KeyReading{ID: 0, AD: 560}, diag.KeyReading{ID: 1, AD: 600}))

	edges, frames := pub.Snapshot()
	assert.Empty(t, frames, "frames disabled")
	assert.Equal(t, []Edge{
		{Key: 0, Pressed: true, AD: 470, Uptime: 20 * time.Millisecond, At: received},
		{Key: 0, Pressed: false, AD: 560, Uptime: 40 * time.Millisecond, At: received},
	}, edges)
}

func TestBridge_StatusResetsEdges(t *testing.T) {
	pub := NewFakePublisher()
	b := NewBridge(pub, -1)

	b.Handle(frameMsg(10, diag.KeyReading{ID: 0, AD: 470, Pressed: true}))
	b.Handle(link.Message{Received: received, Message: diag.Message{Status: diag.StatusTimeout}})
	b.Handle(link.Message{Received: received, Message: diag.Message{Status: diag.StatusStarted}})
	b.Handle(frameMsg(20, diag.KeyReading{ID: 0, AD: 470, Pressed: true}))

	edges, _ := pub.Snapshot()
	assert.Len(t, edges, 2, "press after restart is published again")
	require.Len(t, pub.Statuses, 2)
	assert.Equal(t, diag.StatusTimeout, pub.Statuses[0].Status)
}

func TestBridge_FrameThrottle(t *testing.T) {
	pub := NewFakePublisher()
	b := NewBridge(pub, 100*time.Millisecond)

	for ms := uint64(0); ms < 350; ms += 10 {
		b.Handle(frameMsg(ms, diag.KeyReading{ID: 0, AD: 600}))
	}
	// keypad restarted
	b.Handle(frameMsg(5, diag.KeyReading{ID: 0, AD: 600}))

	_, frames := pub.Snapshot()
	require.Len(t, frames, 5)
	assert.Equal(t, []uint64{0, 100, 200, 300, 5}, []uint64{
		frames[0].Timestamp, frames[1].Timestamp, frames[2].Timestamp, frames[3].Timestamp, frames[4].Timestamp,
	})
}

func TestBridge_Calibration(t *testing.T) {
	pub := NewFakePublisher()
	b := NewBridge(pub, 0)

	c := keys.Calibration{ID: 2, TopDead: 600, BottomDead: 400, DistanceRate: 80, Threshold: 480}
	b.Handle(link.Message{Calibration: &c})
	b.Handle(link.Message{ScanRate: 1000})

	require.Len(t, pub.Calibrations, 1)
	assert.Equal(t, c, pub.Calibrations[0])
	assert.Len(t, pub.Payloads, 1, "scan rate is not published")
}

func TestBridge_FailuresAreCounted(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	b := NewBridge(pub, 0)

	b.Handle(frameMsg(10, diag.KeyReading{ID: 0, AD: 470, Pressed: true}))
	assert.Equal(t, uint64(2), b.Failures(), "edge and frame")
}

func TestBridge_Run(t *testing.T) {
	pub := NewFakePublisher()
	b := NewBridge(pub, 0)

	in := make(chan link.Message, 2)
	in <- frameMsg(10, diag.KeyReading{ID: 0, AD: 470, Pressed: true})
	close(in)

	done := make(chan struct{})
	go func() {
		b.Run(context.Background(), in)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after input closed")
	}

	require.Len(t, pub.Statuses, 1)
	assert.Equal(t, Online, pub.Statuses[0].Status)
	edges, frames := pub.Snapshot()
	assert.Len(t, edges, 1)
	assert.Len(t, frames, 1)
}

func TestBridge_RunStopsOnCancel(t *testing.T) {
	b := NewBridge(NewFakePublisher(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		b.Run(ctx, make(chan link.Message))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
