// Package repository stores farmers, farms, advice and conversation history.
//
// Recommendations, plans and messages are insert-only. The one mutable write
// is SaveFarmFromExtraction, which overwrites a farmer's most recent farm.
package repository

import (
	"errors"
	"strings"
)

var (
	ErrInvalidFarm    = errors.New("farm requires a location and a positive surface area")
	ErrMissingFarm    = errors.New("farm id is required")
	ErrMissingFarmer  = errors.New("farmer id is required")
	ErrMissingSession = errors.New("session id is required")
)

func validateFarm(f *Farm) error {
	if f == nil || strings.TrimSpace(f.Location) == "" || f.SurfaceArea <= 0 {
		return ErrInvalidFarm
	}
	if f.FarmerID <= 0 {
		return ErrMissingFarmer
	}
	return nil
}
