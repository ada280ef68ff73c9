package analog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rice5941/nakuru/pkg/keys"
)

// fakeSPI answers every transfer with a fixed 10-bit value per channel.
type fakeSPI struct {
	values map[int]uint16
	writes [][]byte
	err    error
}

func (f *fakeSPI) Tx(w, r []byte) error {
	f.writes = append(f.writes, append([]byte(nil), w...))
	if f.err != nil {
		return f.err
	}
	ch := int(w[1]>>4) - 8
	v := f.values[ch]
	r[0] = 0xff
	r[1] = 0xfc | byte(v>>8) // garbage in the upper bits
	r[2] = byte(v)
	return nil
}

func TestMCP3008_Read(t *testing.T) {
	spi := &fakeSPI{values: map[int]uint16{0: 1023, 3: 512, 7: 1}}
	m, err := NewMCP3008(spi, []int{0, 3, 7})
	require.NoError(t, err)

	tests := []struct {
		id   int
		want uint16
		tx   []byte
	}{
		{id: 0, want: 1023, tx: []byte{0x01, 0x80, 0x00}},
		{id: 1, want: 512, tx: []byte{0x01, 0xb0, 0x00}},
		{id: 2, want: 1, tx: []byte{0x01, 0xf0, 0x00}},
	}
	for _, tt := range tests {
		got, err := m.Read(tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "key %d", tt.id)
		assert.Equal(t, tt.tx, spi.writes[len(spi.writes)-1], "key %d", tt.id)
	}

	_, err = m.Read(3)
	assert.Error(t, err)
	assert.NoError(t, m.Close())
}

func TestMCP3008_Errors(t *testing.T) {
	_, err := NewMCP3008(&fakeSPI{}, []int{0, 8})
	assert.Error(t, err)

	bus := errors.New("bus fault")
	m, err := NewMCP3008(&fakeSPI{err: bus}, Channels(2))
	require.NoError(t, err)
	_, err = m.Read(0)
	assert.ErrorIs(t, err, bus)
}

func TestChannels(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2, 3}, Channels(4))
	assert.Empty(t, Channels(0))
}

func TestScript(t *testing.T) {
	s := NewScript(2)

	v, err := s.Read(0)
	require.NoError(t, err)
	assert.Zero(t, v)

	s.Push(0, 600, 500)
	s.Push(0, 400)
	for _, want := range []uint16{600, 500, 400, 400, 400} {
		v, err := s.Read(0)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}

	s.SetAll(7)
	v, _ = s.Read(1)
	assert.Equal(t, uint16(7), v)

	boom := errors.New("boom")
	s.Fail(1, boom)
	_, err = s.Read(1)
	assert.ErrorIs(t, err, boom)
	s.Fail(1, nil)
	_, err = s.Read(1)
	assert.NoError(t, err)

	_, err = s.Read(2)
	assert.Error(t, err)
	assert.Equal(t, 3, s.Reads(1))
}

func TestSim_Schedule(t *testing.T) {
	cfg := SimConfig{
		Keys:          2,
		Top:           600,
		Bottom:        400,
		PressPeriod:   time.Second,
		PressDuration: 200 * time.Millisecond,
	}
	s := NewSim(cfg)
	base := time.Unix(100, 0)
	now := base
	s.now = func() time.Time { return now }
	s.start = base

	tests := []struct {
		name    string
		elapsed time.Duration
		id      int
		want    uint16
	}{
		{name: "key 0 starts pressing", elapsed: 0, id: 0, want: 600},
		{name: "key 0 bottoms out mid press", elapsed: 100 * time.Millisecond, id: 0, want: 400},
		{name: "key 0 released", elapsed: 300 * time.Millisecond, id: 0, want: 600},
		{name: "key 1 released while key 0 down", elapsed: 100 * time.Millisecond, id: 1, want: 600},
		{name: "key 1 bottoms out half a period later", elapsed: 600 * time.Millisecond, id: 1, want: 400},
		{name: "schedule repeats", elapsed: 1100 * time.Millisecond, id: 0, want: 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = base.Add(tt.elapsed)
			got, err := s.Read(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := s.Read(2)
	assert.Error(t, err)
}

func TestSim_Noise(t *testing.T) {
	s := NewSim(SimConfig{Keys: 1, Top: 600, Bottom: 400, Noise: 5, PressPeriod: time.Hour, PressDuration: time.Nanosecond, Seed: 3})
	s.start = time.Now().Add(-time.Minute)

	for i := 0; i < 200; i++ {
		v, err := s.Read(0)
		require.NoError(t, err)
		assert.InDelta(t, 600, int(v), 5)
	}
}

func TestSim_CalibratesThroughPrompt(t *testing.T) {
	s := NewSim(SimConfig{Keys: 3, Top: 600, Bottom: 400, PressPeriod: time.Hour, PressDuration: time.Nanosecond})
	s.start = time.Now().Add(-time.Minute)

	b := keys.NewBoard(3)
	c := keys.NewCalibrator(keys.DefaultStroke, keys.DefaultActivation, 0)
	c.Prompt = s.Prompt
	require.NoError(t, c.Calibrate(context.Background(), b, s))

	for id := 0; id < b.Len(); id++ {
		k := b.Key(id)
		assert.True(t, k.Valid)
		assert.Equal(t, uint16(600), k.TopDead)
		assert.Equal(t, uint16(400), k.BottomDead)
		assert.Equal(t, uint16(480), k.Threshold)
	}

	v, err := s.Read(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(600), v, "released after calibration")
}
