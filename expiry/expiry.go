// Package expiry classifies how close a certificate is to expiring.
package expiry

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Tier is the urgency of an upcoming expiration. Tiers are ordered: a later
// tier is always more urgent.
type Tier int

const (
	None Tier = iota
	Info
	Warning
	Critical
	Expired
)

var tierNames = [...]string{"none", "info", "warning", "critical", "expired"}

// String returns the lowercase tier name.
func (t Tier) String() string {
	if t < None || t > Expired {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range tierNames {
		if n == name {
			*t = Tier(i)
			return nil
		}
	}
	return fmt.Errorf("unknown expiry tier %q", text)
}

// Thresholds are the inclusive day counts at which each tier starts.
// Expired always starts at zero days.
type Thresholds struct {
	Info     int
	Warning  int
	Critical int
}

// DefaultThresholds notifies 30, 15 and 7 days before expiry.
var DefaultThresholds = Thresholds{Info: 30, Warning: 15, Critical: 7}

// ThresholdsFromDays builds Thresholds from a descending list such as
// [30, 15, 7].
func ThresholdsFromDays(days []int) (Thresholds, error) {
	if len(days) != 3 {
		return Thresholds{}, fmt.Errorf("expected 3 thresholds, got %d", len(days))
	}
	th := Thresholds{Info: days[0], Warning: days[1], Critical: days[2]}
	if err := th.Validate(); err != nil {
		return Thresholds{}, err
	}
	return th, nil
}

// Validate checks that thresholds are positive and strictly decreasing.
func (th Thresholds) Validate() error {
	if th.Critical <= 0 || th.Warning <= th.Critical || th.Info <= th.Warning {
		return fmt.Errorf("thresholds must satisfy info > warning > critical > 0, got %d/%d/%d",
			th.Info, th.Warning, th.Critical)
	}
	return nil
}

// Days returns the thresholds as a descending list.
func (th Thresholds) Days() []int {
	return []int{th.Info, th.Warning, th.Critical}
}

// State is the expiration state of a certificate at a point in time.
type State struct {
	DaysUntilExpiry int  `json:"days_until_expiry"`
	Tier            Tier `json:"tier"`
}

// Classify computes the state with DefaultThresholds.
func Classify(notAfter, now time.Time) State {
	return ClassifyWith(notAfter, now, DefaultThresholds)
}

// ClassifyWith computes the state of a certificate expiring at notAfter.
// Days are whole days remaining, rounded down, so any instant past notAfter
// yields a negative count.
func ClassifyWith(notAfter, now time.Time, th Thresholds) State {
	days := DaysUntil(notAfter, now)

	var tier Tier
	switch {
	case days <= 0:
		tier = Expired
	case days <= th.Critical:
		tier = Critical
	case days <= th.Warning:
		tier = Warning
	case days <= th.Info:
		tier = Info
	default:
		tier = None
	}
	return State{DaysUntilExpiry: days, Tier: tier}
}

// DaysUntil returns floor((notAfter - now) / 24h).
func DaysUntil(notAfter, now time.Time) int {
	remaining := notAfter.Sub(now)
	return int(math.Floor(remaining.Hours() / 24))
}
