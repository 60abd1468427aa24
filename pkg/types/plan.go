package types

import "time"

// Plan is a purchasable subscription plan. The catalog lives in config, not
// the database, so price changes ship as config rollouts.
type Plan struct {
	ID   string `json:"id" mapstructure:"id"`
	Name string `json:"name" mapstructure:"name"`
	// PriceIDR is the plan price in whole rupiah. Midtrans serializes gross
	// amounts as decimal strings ("10000.00"); use GrossAmount for comparisons.
	PriceIDR     int64 `json:"price_idr" mapstructure:"price_idr"`
	IntervalDays int64 `json:"interval_days" mapstructure:"interval_days"`
}

func (p *Plan) Interval() time.Duration {
	return time.Duration(p.IntervalDays) * 24 * time.Hour
}
