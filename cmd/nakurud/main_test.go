package main

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rice5941/nakuru/pkg/config"
	"github.com/rice5941/nakuru/pkg/engine"
	"github.com/rice5941/nakuru/pkg/hid"
	"github.com/rice5941/nakuru/pkg/keys"
)

type countingObserver struct {
	cal  []keys.Calibration
	rate []engine.ScanReport
}

func (o *countingObserver) Calibrated(c keys.Calibration) { o.cal = append(o.cal, c) }
func (o *countingObserver) ScanRate(r engine.ScanReport)  { o.rate = append(o.rate, r) }

func TestObservers(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	var buf bytes.Buffer
	obs := observers{a, b, newLogObserver(config.Default()), engine.NewTextObserver(&buf, 3.3, 10)}

	obs.Calibrated(keys.Calibration{ID: 1, TopDead: 600, BottomDead: 400, DistanceRate: 80, Threshold: 480})
	obs.ScanRate(engine.ScanReport{Passes: 100, Elapsed: time.Second})

	for _, o := range []*countingObserver{a, b} {
		assert.Len(t, o.cal, 1)
		assert.Len(t, o.rate, 1)
	}
	assert.Contains(t, buf.String(), "ScanRate: 100.0Hz")
}

func TestOpenDiag(t *testing.T) {
	cfg := config.Default()

	cfg.Serial.Port = ""
	r, w, err := openDiag(cfg)
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Nil(t, w)

	cfg.Serial.Port = diagStdio
	r, w, err = openDiag(cfg)
	require.NoError(t, err)
	assert.Equal(t, os.Stdin, r)
	assert.NoError(t, w.Close(), "stdout is not closed")

	cfg.Serial.Port = "/dev/does-not-exist-nakuru"
	_, _, err = openDiag(cfg)
	assert.Error(t, err)
}

func TestOpenMock(t *testing.T) {
	cfg := config.Default()
	d, err := open(cfg, true, false)
	require.NoError(t, err)

	require.NotNil(t, d.sim)
	assert.IsType(t, &hid.Logger{}, d.hid)
	_, err = d.src.Read(0)
	assert.NoError(t, err)
	assert.NoError(t, d.Close())
}

func TestOpenBadKeymap(t *testing.T) {
	cfg := config.Default()
	cfg.Keys.Modifier = "hyper"
	_, err := open(cfg, true, false)
	assert.Error(t, err)
}
