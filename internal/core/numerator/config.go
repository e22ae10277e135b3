package numerator

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict advances the stored sequence for every number.
	// Inside a storage transaction a rollback returns the number, so
	// numbers stay gapless.
	StrategyStrict Strategy = iota

	// StrategyCached reserves ranges of numbers and hands them out from
	// memory. Numbers left in a range are lost on restart.
	StrategyCached
)

// Options configures number generation.
type Options struct {
	Strategy Strategy
	// RangeSize is the number of values reserved at once by StrategyCached.
	// Default is 50.
	RangeSize int64
}

// DefaultOptions returns strict numbering.
func DefaultOptions() *Options {
	return &Options{Strategy: StrategyStrict}
}

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "ORD")
	Prefix string

	// IncludeYear adds year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int

	// ResetPeriod: "year", "month", "never"
	ResetPeriod string
}

// DefaultConfig numbers per year: PREFIX-YYYY-00001.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}
