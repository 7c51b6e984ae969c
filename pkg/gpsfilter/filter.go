// Package gpsfilter pkg/gpsfilter/filter.go implements the per-object
// anti-teleport filter. A fix that implies an impossible jump from the last
// accepted position is held in a confirmation buffer; the new position is
// adopted only once enough subsequent fixes cluster around it.
package gpsfilter

import (
	"math"

	"github.com/cgplatform/dbwriter/pkg/config"
	"github.com/cgplatform/dbwriter/pkg/models"
)

const earthRadiusM = 6371000.0

// Verdict is the outcome of filtering one fix. DistanceM and SpeedKmh are
// measured against the last accepted fix and are zero when there was none.
type Verdict struct {
	Accepted     bool
	RejectReason string
	DistanceM    float64
	SpeedKmh     float64
}

// Filter holds the anti-teleport state for a single object. It is a pure
// in-memory state machine; callers own locking and persistence.
type Filter struct {
	cfg    config.GPSFilterConfig
	last   *models.GPSFix
	buffer []models.GPSFix
}

// New returns a filter with no accepted position. The first quality-passing
// fix is accepted unconditionally.
func New(cfg config.GPSFilterConfig) *Filter {
	return &Filter{cfg: cfg}
}

// Seed installs a previously accepted fix, typically restored from
// gps_latest_filtered at startup. The confirmation buffer starts empty.
func (f *Filter) Seed(fix models.GPSFix) {
	last := fix
	f.last = &last
	f.buffer = nil
}

// Last returns the last accepted fix, or nil.
func (f *Filter) Last() *models.GPSFix {
	return f.last
}

// Apply runs the decision procedure for one fix and updates the filter
// state. Quality rejects (low_sats, bad_fix) leave the state untouched.
func (f *Filter) Apply(fix models.GPSFix) Verdict {
	if fix.Satellites >= 0 && fix.Satellites < f.cfg.SatsMin {
		return Verdict{RejectReason: models.RejectLowSats}
	}

	if fix.FixStatus >= 0 && fix.FixStatus < f.cfg.FixMin {
		return Verdict{RejectReason: models.RejectBadFix}
	}

	if f.last == nil {
		f.accept(fix)
		return Verdict{Accepted: true}
	}

	d := HaversineMeters(f.last.Lat, f.last.Lon, fix.Lat, fix.Lon)
	speed := impliedSpeedKmh(d, fix.ReceivedAt.Sub(f.last.ReceivedAt).Seconds())

	if d > f.cfg.MaxJumpM {
		// A jump beyond the hard limit can still be legitimate if the
		// elapsed time makes the implied speed plausible.
		if speed <= f.cfg.MaxSpeedKmh {
			f.accept(fix)
			return Verdict{Accepted: true, DistanceM: d, SpeedKmh: speed}
		}

		return f.confirm(fix, models.RejectJumpDistance, d, speed)
	}

	if speed > f.cfg.MaxSpeedKmh {
		return f.confirm(fix, models.RejectJumpSpeed, d, speed)
	}

	f.accept(fix)

	return Verdict{Accepted: true, DistanceM: d, SpeedKmh: speed}
}

func (f *Filter) accept(fix models.GPSFix) {
	last := fix
	f.last = &last
	f.buffer = nil
}

// confirm runs the confirmation buffer. The first rejected fix anchors the
// buffer; acceptance requires ConfirmPoints further fixes all pairwise
// within ConfirmRadiusM. A candidate outside the cluster restarts it.
func (f *Filter) confirm(fix models.GPSFix, reason string, d, speed float64) Verdict {
	for _, buffered := range f.buffer {
		if HaversineMeters(buffered.Lat, buffered.Lon, fix.Lat, fix.Lon) > f.cfg.ConfirmRadiusM {
			f.buffer = []models.GPSFix{fix}
			return Verdict{RejectReason: reason, DistanceM: d, SpeedKmh: speed}
		}
	}

	f.buffer = append(f.buffer, fix)

	if len(f.buffer) > f.cfg.ConfirmPoints {
		f.accept(fix)
		return Verdict{Accepted: true, DistanceM: d, SpeedKmh: speed}
	}

	return Verdict{RejectReason: reason, DistanceM: d, SpeedKmh: speed}
}

// impliedSpeedKmh converts a displacement over elapsed seconds to km/h. A
// non-positive elapsed time with real displacement reads as infinite speed.
func impliedSpeedKmh(distanceM, elapsedSec float64) float64 {
	if elapsedSec <= 0 {
		if distanceM > 0 {
			return math.Inf(1)
		}

		return 0
	}

	return distanceM / elapsedSec * 3.6
}

// HaversineMeters returns the great-circle distance between two WGS84
// coordinates.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)

	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
