package models

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaMismatch is returned when stored data does not have the expected layout
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrUnknownWP is returned for a WP index outside the WP table
	ErrUnknownWP = errors.New("unknown WP index")
)

// WPEntry locates a work package in the 2-D parameter grid
type WPEntry struct {
	ChannelIndex uint64 // row: channel realisation
	PIndex       uint64 // column: power level
}

// ProvenanceState is one captured PRNG state, tagged with the number of
// channels drawn before it was taken
type ProvenanceState struct {
	BeforeChannelIdx uint64
	State            []byte
}

// ValidationError represents structured validation errors
type ValidationError struct {
	Field   string
	Message string
	Value   string
}

func (ve ValidationError) Error() string {
	if ve.Value != "" {
		return fmt.Sprintf("validation error in field '%s': %s (value: %s)", ve.Field, ve.Message, ve.Value)
	}
	return fmt.Sprintf("validation error in field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(ve), ve[0].Error(), len(ve)-1)
}
