// Package rates prices watch time in points.
package rates

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/watchpoints/points-engine/pkg/enums"
)

const (
	DefaultWindowSeconds   int64 = 600
	DefaultBaseRate        int64 = 50
	DefaultMinWatchSeconds int64 = 5
)

// ErrInvalidMultiplier means a caller produced a multiplier outside {1, 3, 5}.
// It is a configuration fault, not bad user input.
var ErrInvalidMultiplier = errors.New("invalid tier multiplier")

// ErrPointsOverflow means the computed credit does not fit in an int64.
var ErrPointsOverflow = errors.New("earned points overflow")

var maxPoints = decimal.NewFromInt(math.MaxInt64)

var validMultipliers = map[int]struct{}{1: {}, 3: {}, 5: {}}

var tierMultipliers = map[enums.UserTier]int{
	enums.UserTierNone:     1,
	enums.UserTierPending:  3,
	enums.UserTierVerified: 5,
}

// Table holds the base rate per category, in points per WindowSeconds of watch time.
type Table struct {
	WindowSeconds   int64
	DefaultRate     int64
	MinWatchSeconds int64
	BaseRates       map[enums.ContentCategory]int64
}

// DefaultTable returns the built-in rate table.
func DefaultTable() Table {
	return Table{
		WindowSeconds:   DefaultWindowSeconds,
		DefaultRate:     DefaultBaseRate,
		MinWatchSeconds: DefaultMinWatchSeconds,
		BaseRates: map[enums.ContentCategory]int64{
			enums.CategoryFinance:       500,
			enums.CategoryEducation:     400,
			enums.CategoryTechnology:    300,
			enums.CategoryHealth:        300,
			enums.CategoryBusiness:      300,
			enums.CategoryLifestyle:     150,
			enums.CategoryEntertainment: 100,
			enums.CategoryGaming:        100,
		},
	}
}

func (t Table) validate() error {
	if t.WindowSeconds <= 0 {
		return fmt.Errorf("window seconds must be positive, got %d", t.WindowSeconds)
	}
	if t.DefaultRate < 0 {
		return fmt.Errorf("default rate must not be negative, got %d", t.DefaultRate)
	}
	if t.MinWatchSeconds < 0 {
		return fmt.Errorf("minimum watch seconds must not be negative, got %d", t.MinWatchSeconds)
	}
	for category, rate := range t.BaseRates {
		if rate < 0 {
			return fmt.Errorf("rate for %s must not be negative, got %d", category, rate)
		}
	}
	return nil
}

// Model computes earned points from a rate table.
type Model struct {
	table Table
}

// NewModel validates table and builds a Model. Use WithMinWatchSeconds to
// override the table's minimum from config.
func NewModel(table Table) (*Model, error) {
	if err := table.validate(); err != nil {
		return nil, err
	}
	rates := make(map[enums.ContentCategory]int64, len(table.BaseRates))
	for category, rate := range table.BaseRates {
		rates[enums.NormalizeContentCategory(string(category))] = rate
	}
	table.BaseRates = rates
	return &Model{table: table}, nil
}

// WithMinWatchSeconds returns a copy of the model using the given minimum.
func (m *Model) WithMinWatchSeconds(seconds int64) *Model {
	if seconds < 0 {
		return m
	}
	table := m.table
	table.MinWatchSeconds = seconds
	return &Model{table: table}
}

// Table returns a copy of the active rate table.
func (m *Model) Table() Table {
	out := m.table
	out.BaseRates = make(map[enums.ContentCategory]int64, len(m.table.BaseRates))
	for k, v := range m.table.BaseRates {
		out.BaseRates[k] = v
	}
	return out
}

// BaseRate returns the rate for category, falling back to the default rate.
func (m *Model) BaseRate(category enums.ContentCategory) int64 {
	if rate, ok := m.table.BaseRates[enums.NormalizeContentCategory(string(category))]; ok {
		return rate
	}
	return m.table.DefaultRate
}

// ComputeEarnedPoints returns floor(seconds / window * baseRate * multiplier).
// Durations are floored to whole seconds; anything under the minimum earns 0.
func (m *Model) ComputeEarnedPoints(category enums.ContentCategory, watchDurationSeconds float64, multiplier int) (int64, error) {
	if _, ok := validMultipliers[multiplier]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidMultiplier, multiplier)
	}
	if math.IsNaN(watchDurationSeconds) || math.IsInf(watchDurationSeconds, 0) {
		return 0, fmt.Errorf("watch duration must be finite")
	}
	seconds := decimal.NewFromFloat(watchDurationSeconds).Floor()
	if seconds.LessThan(decimal.NewFromInt(m.table.MinWatchSeconds)) {
		return 0, nil
	}
	points := seconds.
		Mul(decimal.NewFromInt(m.BaseRate(category))).
		Mul(decimal.NewFromInt(int64(multiplier))).
		Div(decimal.NewFromInt(m.table.WindowSeconds)).
		Floor()
	if points.GreaterThan(maxPoints) {
		return 0, fmt.Errorf("%w: %s seconds", ErrPointsOverflow, seconds.String())
	}
	return points.IntPart(), nil
}

// MultiplierForTier maps a verification tier to its earning multiplier.
// Unknown tiers earn at the base multiplier.
func MultiplierForTier(tier enums.UserTier) int {
	if m, ok := tierMultipliers[tier]; ok {
		return m
	}
	return 1
}
