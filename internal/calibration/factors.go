package calibration

import (
	"context"
	"fmt"
)

// Store keys of the persisted calibration state.
const (
	FactorsKey    = "full_auto_factors"
	FieldMove     = "move_factor"
	FieldRotate   = "rot_factor"
	CalibrateFlag = "calibrate"
)

// Factors are the two physical constants the navigation layer needs.
// A nil factor has never been measured.
type Factors struct {
	// MoveFactor is world units travelled per second of forward movement.
	MoveFactor *float64
	// RotFactor is heading degrees per rotation pulse.
	RotFactor *float64
}

// Complete reports whether both factors are present and non-zero.
func (f Factors) Complete() bool {
	return f.MoveFactor != nil && f.RotFactor != nil && *f.MoveFactor != 0 && *f.RotFactor != 0
}

// Store is the persistent key-value store the factors live in. *kvstore.Store implements it.
type Store interface {
	GetField(ctx context.Context, key, field string, dst any) (bool, error)
	SetField(ctx context.Context, key, field string, value any) error
	Set(ctx context.Context, key string, value any) error
	Bool(ctx context.Context, key string, def bool) bool
}

// LoadFactors reads both factors from the store.
func LoadFactors(ctx context.Context, store Store) (Factors, error) {
	var f Factors
	for field, dst := range map[string]**float64{FieldMove: &f.MoveFactor, FieldRotate: &f.RotFactor} {
		var v float64
		ok, err := store.GetField(ctx, FactorsKey, field, &v)
		if err != nil {
			return Factors{}, fmt.Errorf("failed to read %s: %w", field, err)
		}
		if ok {
			*dst = &v
		}
	}
	return f, nil
}

// Requested reports whether a calibration run has been asked for.
func Requested(ctx context.Context, store Store) bool {
	return store.Bool(ctx, CalibrateFlag, false)
}

// Request asks for a calibration run on the next opportunity.
func Request(ctx context.Context, store Store) error {
	if err := store.Set(ctx, CalibrateFlag, true); err != nil {
		return fmt.Errorf("failed to request calibration: %w", err)
	}
	return nil
}
