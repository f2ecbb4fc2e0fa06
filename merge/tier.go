package merge

import (
	"fmt"
	"strings"

	"github.com/arloliu/atmogrid/errs"
)

// Tier is a data source category with a strict precedence.
type Tier uint8

const (
	// Forecast is the lowest tier: model output for hours not yet observed.
	Forecast Tier = iota + 1
	// RTMA is the near-real-time reanalysis.
	RTMA
	// URMA is the final reanalysis and outranks every other tier.
	URMA
)

// Tiers lists every tier, highest precedence first.
var Tiers = [...]Tier{URMA, RTMA, Forecast}

// ParseTier parses a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "urma":
		return URMA, nil
	case "rtma":
		return RTMA, nil
	case "forecast", "fcast":
		return Forecast, nil
	default:
		return 0, fmt.Errorf("%w: unknown tier %q", errs.ErrInvalidConfig, s)
	}
}

// String returns the tier name, also used as the provenance source tag.
func (t Tier) String() string {
	switch t {
	case URMA:
		return "urma"
	case RTMA:
		return "rtma"
	case Forecast:
		return "forecast"
	default:
		return "unknown"
	}
}

// Outranks reports whether t takes precedence over o.
func (t Tier) Outranks(o Tier) bool {
	return t > o
}

// IsObservation reports whether t is an observation tier.
func (t Tier) IsObservation() bool {
	return t == URMA || t == RTMA
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v

	return nil
}
