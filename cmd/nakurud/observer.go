package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/rice5941/nakuru/pkg/config"
	"github.com/rice5941/nakuru/pkg/engine"
	"github.com/rice5941/nakuru/pkg/keys"
)

// observers fans engine events out to several observers.
type observers []engine.Observer

func (o observers) Calibrated(c keys.Calibration) {
	for _, ob := range o {
		ob.Calibrated(c)
	}
}

func (o observers) ScanRate(r engine.ScanReport) {
	for _, ob := range o {
		ob.ScanRate(r)
	}
}

// logObserver logs engine events.
type logObserver struct {
	vref float32
	bits uint8
}

func newLogObserver(cfg *config.Config) logObserver {
	return logObserver{vref: cfg.Analog.VRef, bits: cfg.Analog.Resolution}
}

func (o logObserver) Calibrated(c keys.Calibration) {
	entry := log.WithFields(log.Fields{
		"key":         c.ID,
		"top_dead":    c.TopDead,
		"top_v":       keys.Volts(c.TopDead, o.vref, o.bits),
		"bottom_dead": c.BottomDead,
		"bottom_v":    keys.Volts(c.BottomDead, o.vref, o.bits),
	})
	if c.Err != nil {
		entry.WithError(c.Err).Warn("key disabled")
		return
	}
	entry.WithFields(log.Fields{
		"distance_rate": c.DistanceRate,
		"threshold":     c.Threshold,
	}).Info("key calibrated")
}

func (o logObserver) ScanRate(r engine.ScanReport) {
	log.WithField("passes", r.Passes).Infof("scan rate %.1fHz", r.Hz())
}

func logPhase(p keys.Phase) {
	switch p {
	case keys.PhaseTopDead:
		log.Info("calibrating: keep all keys released")
	case keys.PhaseSettle:
		log.Info("calibrating: press and hold all keys")
	case keys.PhaseBottomDead:
		log.Info("calibrating: reading bottom dead")
	case keys.PhaseDone:
		log.Info("calibration done, release all keys")
	}
}
