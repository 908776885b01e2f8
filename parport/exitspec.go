package parport

import (
	"fmt"
	"strings"
)

// ExitState is what Close does with one group of lines.
type ExitState int

const (
	// ExitUnspec leaves the lines alone
	ExitUnspec ExitState = iota
	ExitEnabled
	ExitDisabled
)

// ExitSpec is the state of the target lines after Close.
//
// Reset enabled keeps the target in reset. Data enabled drives all data
// lines high, disabled drives them low. VCC enabled leaves the target
// powered.
type ExitSpec struct {
	Reset ExitState
	Data  ExitState
	VCC   ExitState
}

// ParseExitSpecs parses a comma separated list of reset, noreset, vcc,
// novcc, d_high and d_low.
func ParseExitSpecs(s string) (ExitSpec, error) {
	var e ExitSpec
	for _, f := range strings.Split(s, ",") {
		switch strings.TrimSpace(f) {
		case "":
		case "reset":
			e.Reset = ExitEnabled
		case "noreset":
			e.Reset = ExitDisabled
		case "vcc":
			e.VCC = ExitEnabled
		case "novcc":
			e.VCC = ExitDisabled
		case "d_high":
			e.Data = ExitEnabled
		case "d_low":
			e.Data = ExitDisabled
		default:
			return ExitSpec{}, fmt.Errorf("invalid exit spec %q", f)
		}
	}
	return e, nil
}
