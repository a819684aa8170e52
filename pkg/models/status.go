package models

import (
	"fmt"
)

// Status is the solver outcome stored with every result record.
// Values match the enum written by the solvers.
type Status uint16

const (
	StatusOptimal Status = iota
	StatusUnsolved
	StatusInfeasible
	StatusMaxiter
)

var statusNames = map[Status]string{
	StatusOptimal:    "Optimal",
	StatusUnsolved:   "Unsolved",
	StatusInfeasible: "Infeasible",
	StatusMaxiter:    "Maxiter",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", uint16(s))
}

// ParseStatus maps an enum label back to its Status
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown solver status %q", name)
}

// Valid reports whether s is one of the known enum members
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsOptimal returns true if the solver proved optimality
func (s Status) IsOptimal() bool { return s == StatusOptimal }

// IsSolved returns true if the record carries a usable solution
func (s Status) IsSolved() bool { return s == StatusOptimal || s == StatusMaxiter }

// IsInfeasible returns true if the problem was found infeasible
func (s Status) IsInfeasible() bool { return s == StatusInfeasible }
