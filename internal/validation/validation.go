// Package validation rejects malformed query parameters instead of clamping them.
package validation

import (
	"fmt"
	"math"
	"strconv"
)

const (
	SuccessRateMin = 0.0
	SuccessRateMax = 100.0
	VolumeMin      = 0.0
	VolumeMax      = 1e18
)

// Error describes a rejected parameter.
type Error struct {
	Param  string
	Value  string
	Reason string
}

func (e *Error) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
	}
	return fmt.Sprintf("invalid %s (%s): %s", e.Param, e.Value, e.Reason)
}

// Finite rejects NaN and infinities.
func Finite(param string, v float64) error {
	if math.IsNaN(v) {
		return &Error{Param: param, Value: "NaN", Reason: "must be a finite number"}
	}
	if math.IsInf(v, 0) {
		return &Error{Param: param, Value: "infinity", Reason: "must be a finite number"}
	}
	return nil
}

// Range checks a finite value against [lo, hi].
func Range(param string, v, lo, hi float64) error {
	if err := Finite(param, v); err != nil {
		return err
	}
	if v < lo || v > hi {
		return &Error{
			Param:  param,
			Value:  strconv.FormatFloat(v, 'g', -1, 64),
			Reason: fmt.Sprintf("must be between %g and %g", lo, hi),
		}
	}
	return nil
}

// NonNegative rejects negative counts.
func NonNegative(param string, v int64) error {
	if v < 0 {
		return &Error{Param: param, Value: strconv.FormatInt(v, 10), Reason: "must not be negative"}
	}
	return nil
}

// CorridorFilters are the optional bounds of a corridor listing.
type CorridorFilters struct {
	SuccessRateMin *float64
	SuccessRateMax *float64
	VolumeMin      *float64
	VolumeMax      *float64
}

// Validate checks each bound and the ordering of paired bounds.
func (f CorridorFilters) Validate() error {
	checks := []struct {
		name   string
		value  *float64
		lo, hi float64
	}{
		{"success_rate_min", f.SuccessRateMin, SuccessRateMin, SuccessRateMax},
		{"success_rate_max", f.SuccessRateMax, SuccessRateMin, SuccessRateMax},
		{"volume_min", f.VolumeMin, VolumeMin, VolumeMax},
		{"volume_max", f.VolumeMax, VolumeMin, VolumeMax},
	}
	for _, c := range checks {
		if c.value == nil {
			continue
		}
		if err := Range(c.name, *c.value, c.lo, c.hi); err != nil {
			return err
		}
	}

	if f.SuccessRateMin != nil && f.SuccessRateMax != nil && *f.SuccessRateMin > *f.SuccessRateMax {
		return inverted("success_rate_min", "success_rate_max", *f.SuccessRateMin, *f.SuccessRateMax)
	}
	if f.VolumeMin != nil && f.VolumeMax != nil && *f.VolumeMin > *f.VolumeMax {
		return inverted("volume_min", "volume_max", *f.VolumeMin, *f.VolumeMax)
	}
	return nil
}

func inverted(minParam, maxParam string, lo, hi float64) *Error {
	return &Error{
		Param:  minParam,
		Value:  strconv.FormatFloat(lo, 'g', -1, 64) + " > " + strconv.FormatFloat(hi, 'g', -1, 64),
		Reason: "must be less than or equal to " + maxParam,
	}
}

// Match reports whether a corridor with the given success rate and volume passes the filters.
func (f CorridorFilters) Match(successRate, volume float64) bool {
	if f.SuccessRateMin != nil && successRate < *f.SuccessRateMin {
		return false
	}
	if f.SuccessRateMax != nil && successRate > *f.SuccessRateMax {
		return false
	}
	if f.VolumeMin != nil && volume < *f.VolumeMin {
		return false
	}
	if f.VolumeMax != nil && volume > *f.VolumeMax {
		return false
	}
	return true
}
