package trace

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rice5941/nakuru/pkg/diag"
	"github.com/rice5941/nakuru/pkg/keys"
	"github.com/rice5941/nakuru/pkg/link"
)

func frame(ms uint64, readings ...diag.KeyReading) link.Message {
	return link.Message{Message: diag.Message{Frame: &diag.Frame{Type: diag.FrameType, Timestamp: ms, Keys: readings}}}
}

func status(s string) link.Message {
	return link.Message{Message: diag.Message{Status: s}}
}

func key(id int, ad uint16, pressed bool) diag.KeyReading {
	return diag.KeyReading{ID: id, AD: ad, Pressed: pressed}
}

func TestRecorder_Series(t *testing.T) {
	r := New(time.Second)

	assert.True(t, r.Add(frame(10, key(0, 600, false), key(1, 610, false))))
	assert.True(t, r.Add(frame(20, key(0, 590, false), key(1, 605, false))))

	assert.Equal(t, []Point{{At: 10 * time.Millisecond, AD: 600}, {At: 20 * time.Millisecond, AD: 590}}, r.Series(0))
	assert.Len(t, r.Series(1), 2)
	assert.Empty(t, r.Series(7))

	frames, restarts := r.Frames()
	assert.Equal(t, uint64(2), frames)
	assert.Zero(t, restarts)
}

func TestRecorder_Window(t *testing.T) {
	r := New(100 * time.Millisecond)
	for ms := uint64(0); ms <= 300; ms += 10 {
		r.Add(frame(ms, key(0, 600, false)))
	}

	pts := r.Series(0)
	require.NotEmpty(t, pts)
	assert.Equal(t, 200*time.Millisecond, pts[0].At)
	assert.Equal(t, 300*time.Millisecond, pts[len(pts)-1].At)
}

func TestRecorder_Strokes(t *testing.T) {
	r := New(time.Second)

	r.Add(frame(10, key(0, 600, false)))
	r.Add(frame(20, key(0, 470, true)))
	r.Add(frame(30, key(0, 400, true)))
	r.Add(frame(40, key(0, 430, true)))

	strokes := r.Strokes()
	require.Len(t, strokes, 1)
	assert.True(t, strokes[0].Open)
	assert.Equal(t, uint16(400), strokes[0].Peak)

	r.Add(frame(50, key(0, 560, false)))
	r.Add(frame(60, key(0, 470, true)))

	strokes = r.Strokes()
	require.Len(t, strokes, 2)
	assert.Equal(t, Stroke{Key: 0, Start: 20 * time.Millisecond, End: 50 * time.Millisecond, Peak: 400}, strokes[0])
	assert.Equal(t, 30*time.Millisecond, strokes[0].Duration())
	assert.True(t, strokes[1].Open)
}

func TestRecorder_StrokesExpire(t *testing.T) {
	r := New(50 * time.Millisecond)

	r.Add(frame(10, key(0, 470, true), key(1, 470, true)))
	r.Add(frame(20, key(0, 600, false), key(1, 470, true)))
	for ms := uint64(30); ms <= 200; ms += 10 {
		r.Add(frame(ms, key(0, 600, false), key(1, 460, true)))
	}

	strokes := r.Strokes()
	require.Len(t, strokes, 1, "finished stroke of key 0 left the window")
	assert.Equal(t, 1, strokes[0].Key)
	assert.True(t, strokes[0].Open)
	assert.Equal(t, uint16(460), strokes[0].Peak)

	r.Add(frame(210, key(1, 600, false)))
	strokes = r.Strokes()
	require.Len(t, strokes, 1)
	assert.False(t, strokes[0].Open)
	assert.Equal(t, 210*time.Millisecond, strokes[0].End)
}

func TestRecorder_StatusClosesStrokes(t *testing.T) {
	r := New(time.Second)

	r.Add(status(diag.StatusStarted))
	r.Add(frame(10, key(0, 470, true)))
	r.Add(status(diag.StatusTimeout))

	snap := r.Snapshot()
	assert.Equal(t, diag.StatusTimeout, snap.Status)
	require.Len(t, snap.Strokes, 1)
	assert.False(t, snap.Strokes[0].Open)
}

func TestRecorder_Restart(t *testing.T) {
	r := New(time.Second)

	r.Add(frame(500, key(0, 600, false)))
	r.Add(frame(510, key(0, 470, true)))
	r.Add(frame(5, key(0, 600, false)))

	assert.Equal(t, []Point{{At: 5 * time.Millisecond, AD: 600}}, r.Series(0))
	assert.Empty(t, r.Strokes())

	frames, restarts := r.Frames()
	assert.Equal(t, uint64(3), frames)
	assert.Equal(t, uint64(1), restarts)
}

func TestRecorder_Reports(t *testing.T) {
	r := New(time.Second)

	c := keys.Calibration{ID: 2, TopDead: 600, BottomDead: 400, DistanceRate: 80, Threshold: 480}
	assert.True(t, r.Add(link.Message{Calibration: &c}))
	assert.True(t, r.Add(link.Message{ScanRate: 9876.5}))
	assert.False(t, r.Add(link.Message{}), "empty message is ignored")

	snap := r.Snapshot()
	assert.Equal(t, c, snap.Calibrations[2])
	assert.Equal(t, 9876.5, snap.ScanRate)
}

func TestRecorder_Snapshot(t *testing.T) {
	r := New(time.Second)
	r.Add(frame(10, key(3, 600, false), key(1, 600, false)))

	snap := r.Snapshot()
	assert.Equal(t, []int{1, 3}, snap.Keys)
	assert.Equal(t, 10*time.Millisecond, snap.Latest)

	// snapshots are copies
	snap.Series[1][0].AD = 0
	assert.Equal(t, uint16(600), r.Series(1)[0].AD)

	r.Reset()
	assert.Empty(t, r.Snapshot().Keys)
}

func TestRecorder_ProcessMessages(t *testing.T) {
	r := New(time.Second)

	var (
		mu    sync.Mutex
		snaps []Snapshot
	)
	r.OnUpdate(func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	input := make(chan link.Message, 4)
	input <- status(diag.StatusStarted)
	input <- frame(10, key(0, 600, false))
	input <- link.Message{}
	input <- frame(20, key(0, 470, true))
	close(input)

	r.ProcessMessages(input)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, snaps, 3)
	assert.Len(t, snaps[2].Series[0], 2)
	assert.Len(t, snaps[2].Strokes, 1)
}

func TestRecorder_GracefulShutdown_NoCallbacksAfterClose(t *testing.T) {
	r := New(time.Second)

	calls := 0
	r.OnUpdate(func(Snapshot) { calls++ })

	input := make(chan link.Message, 2)
	input <- frame(10, key(0, 600, false))
	close(input)
	r.ProcessMessages(input)
	require.Equal(t, 1, calls)

	assert.False(t, r.Add(frame(20, key(0, 600, false))), "no callbacks after shutdown")
	assert.Len(t, r.Series(0), 2, "data is still recorded")

	r.ResetShutdown()
	input = make(chan link.Message, 1)
	input <- frame(30, key(0, 600, false))
	close(input)
	r.ProcessMessages(input)
	assert.Equal(t, 2, calls)
}

func TestDownsample(t *testing.T) {
	points := make([]Point, 100)
	for i := range points {
		points[i] = Point{At: time.Duration(i) * time.Millisecond, AD: uint16(i)}
	}
	points[37].Pressed = true

	t.Run("fewer than max", func(t *testing.T) {
		got := Downsample(nil, points[:5], 10)
		assert.Equal(t, points[:5], got)
	})

	t.Run("decimates", func(t *testing.T) {
		got := Downsample(nil, points, 10)
		require.Len(t, got, 10)
		assert.Equal(t, uint16(0), got[0].AD)
		assert.Equal(t, uint16(90), got[9].AD)
		assert.True(t, got[3].Pressed, "press inside bucket survives")
		assert.Equal(t, uint16(30), got[3].AD)
		assert.False(t, got[4].Pressed)
	})

	t.Run("reuses dst", func(t *testing.T) {
		dst := make([]Point, 0, 20)
		got := Downsample(dst, points, 20)
		assert.Len(t, got, 20)
		assert.Equal(t, cap(dst), cap(got))
	})

	t.Run("does not alias input", func(t *testing.T) {
		got := Downsample(nil, points[:3], 10)
		got[0].AD = 999
		assert.Equal(t, uint16(0), points[0].AD)
	})
}
