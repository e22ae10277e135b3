// Package numerator hands out human-readable sequential numbers
// such as ORD-2026-00042 on top of a stored Sequence.
package numerator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Generator generates sequential numbers.
type Generator interface {
	// GetNextNumber generates the next number for cfg in period.
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)

	// SetNextNumber moves the sequence so the next number is value+1.
	SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error
}

// Sequence stores the last value handed out per key.
type Sequence interface {
	// Advance adds delta to the value at key, creating it at delta, and
	// returns the new value.
	Advance(ctx context.Context, key string, delta int64) (int64, error)

	// Set overwrites the value at key.
	Set(ctx context.Context, key string, value int64) error
}

type cachedRange struct {
	current int64
	max     int64
}

// Service implements Generator over a Sequence.
type Service struct {
	seq Sequence

	mu     sync.Mutex
	ranges map[string]*cachedRange // sequence key -> reserved range
}

var _ Generator = (*Service)(nil)

func New(seq Sequence) *Service {
	return &Service{
		seq:    seq,
		ranges: make(map[string]*cachedRange),
	}
}

func (s *Service) GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	key := buildKey(cfg, period)

	var num int64
	var err error
	switch opts.Strategy {
	case StrategyCached:
		num, err = s.nextCached(ctx, key, opts.RangeSize)
	default:
		num, err = s.seq.Advance(ctx, key, 1)
	}
	if err != nil {
		return "", fmt.Errorf("next %s: %w", key, err)
	}

	return formatNumber(cfg, period, num), nil
}

// nextCached serves from the reserved range, reserving a new one when
// the current range is used up.
func (s *Service) nextCached(ctx context.Context, key string, size int64) (int64, error) {
	if size <= 0 {
		size = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rng, ok := s.ranges[key]
	if !ok {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}

	if rng.current >= rng.max {
		newMax, err := s.seq.Advance(ctx, key, size)
		if err != nil {
			return 0, err
		}
		// The reserved range is (newMax-size, newMax].
		rng.current = newMax - size
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}

func (s *Service) SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error {
	key := buildKey(cfg, period)
	if err := s.seq.Set(ctx, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	s.mu.Lock()
	delete(s.ranges, key)
	s.mu.Unlock()
	return nil
}

// buildKey names the sequence for cfg in period.
func buildKey(cfg Config, period time.Time) string {
	switch cfg.ResetPeriod {
	case "month":
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006_01"))
	case "year":
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006"))
	default:
		return cfg.Prefix
	}
}

func formatNumber(cfg Config, period time.Time, num int64) string {
	padWidth := cfg.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}

	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format("2006"), padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, padWidth, num)
}

// ParseNumber extracts the numeric part of a formatted number.
// Returns -1 if parsing fails.
func ParseNumber(formatted string) int64 {
	i := strings.LastIndexByte(formatted, '-')
	if i < 0 {
		return -1
	}
	num, err := strconv.ParseInt(formatted[i+1:], 10, 64)
	if err != nil || num < 0 {
		return -1
	}
	return num
}
