package reconciliation

import (
	"fmt"

	"github.com/finrec/backend/internal/domain/shared"
	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// confidencePrecision is the number of decimal places confidence is
// rounded to before any comparison, keeping tie-breaks deterministic.
const confidencePrecision = 4

// SignalWeights holds the relative weight of each scoring signal.
// Weights must sum to exactly 1.0.
type SignalWeights struct {
	Reference float64 `json:"reference"`
	Amount    float64 `json:"amount"`
	Date      float64 `json:"date"`
	Customer  float64 `json:"customer"`
}

// DefaultSignalWeights returns the default policy weights. They are a
// policy choice, not an empirically validated model; deployments tune
// them through configuration.
func DefaultSignalWeights() SignalWeights {
	return SignalWeights{
		Reference: 0.40,
		Amount:    0.35,
		Date:      0.15,
		Customer:  0.10,
	}
}

// Config holds all tunable reconciliation policy. A malformed Config is
// rejected before any record is processed; it is never silently clamped
// or defaulted, since that would make matching behavior non-reproducible.
type Config struct {
	Currency valueobject.Currency

	AutoMatchThreshold float64
	ReviewThreshold    float64

	// AmountTolerance is the absolute tolerance applied to the candidate
	// amount window. Zero means exact-or-partial only.
	AmountTolerance decimal.Decimal

	DateWindowDays int

	LargeAmountThreshold decimal.Decimal
	StaleAgeDays         int
	NearEqualEpsilon     decimal.Decimal

	Weights SignalWeights
}

// DefaultConfig returns the default reconciliation policy
func DefaultConfig() Config {
	return Config{
		Currency:             valueobject.DefaultCurrency,
		AutoMatchThreshold:   0.85,
		ReviewThreshold:      0.50,
		AmountTolerance:      decimal.Zero,
		DateWindowDays:       90,
		LargeAmountThreshold: decimal.NewFromInt(10000),
		StaleAgeDays:         30,
		NearEqualEpsilon:     decimal.NewFromInt(1),
		Weights:              DefaultSignalWeights(),
	}
}

// Validate checks the configuration, failing fast on any malformed value
func (c Config) Validate() error {
	if c.Currency == "" {
		return shared.NewDomainError("INVALID_CONFIG", "currency is required")
	}
	if c.AutoMatchThreshold < 0 || c.AutoMatchThreshold > 1 {
		return shared.NewDomainError("INVALID_CONFIG", "auto-match threshold must be within [0,1]")
	}
	if c.ReviewThreshold < 0 || c.ReviewThreshold > 1 {
		return shared.NewDomainError("INVALID_CONFIG", "review threshold must be within [0,1]")
	}
	if c.ReviewThreshold > c.AutoMatchThreshold {
		return shared.NewDomainError("INVALID_CONFIG", "review threshold must not exceed auto-match threshold")
	}
	if c.AmountTolerance.IsNegative() {
		return shared.NewDomainError("INVALID_CONFIG", "amount tolerance must not be negative")
	}
	if c.DateWindowDays <= 0 {
		return shared.NewDomainError("INVALID_CONFIG", "date window must be positive")
	}
	if c.LargeAmountThreshold.IsNegative() {
		return shared.NewDomainError("INVALID_CONFIG", "large-amount threshold must not be negative")
	}
	if c.StaleAgeDays < 0 {
		return shared.NewDomainError("INVALID_CONFIG", "stale age must not be negative")
	}
	if c.NearEqualEpsilon.IsNegative() {
		return shared.NewDomainError("INVALID_CONFIG", "near-equal epsilon must not be negative")
	}
	if err := c.Weights.validate(); err != nil {
		return err
	}
	return nil
}

func (w SignalWeights) validate() error {
	for name, v := range map[string]float64{
		"reference": w.Reference,
		"amount":    w.Amount,
		"date":      w.Date,
		"customer":  w.Customer,
	} {
		if v < 0 || v > 1 {
			return shared.NewDomainError("INVALID_CONFIG",
				fmt.Sprintf("%s weight must be within [0,1]", name))
		}
	}
	// Compare on decimals so 0.40+0.35+0.15+0.10 sums exactly.
	sum := decimal.NewFromFloat(w.Reference).
		Add(decimal.NewFromFloat(w.Amount)).
		Add(decimal.NewFromFloat(w.Date)).
		Add(decimal.NewFromFloat(w.Customer))
	if !sum.Equal(decimal.NewFromInt(1)) {
		return shared.NewDomainError("INVALID_CONFIG",
			fmt.Sprintf("signal weights must sum to 1.0, got %s", sum.String()))
	}
	return nil
}

// roundConfidence rounds a raw confidence to the fixed precision and
// clamps it to [0,1]
func roundConfidence(v float64) float64 {
	d := decimal.NewFromFloat(v).Round(confidencePrecision)
	if d.IsNegative() {
		return 0
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return 1
	}
	f, _ := d.Float64()
	return f
}
