package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Duration is a time.Duration that also accepts a whole-day form such as "7d"
type Duration struct {
	time.Duration
}

// ParseDuration parses "7d" style day counts and anything time.ParseDuration accepts
func ParseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)

	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q: %w", v, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("negative day count %q", v)
		}
		return time.Duration(n) * day, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}

// UnmarshalText implements encoding.TextUnmarshaler, which envconfig uses for decoding
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		return nil
	}

	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// WholeSeconds returns the duration in whole seconds, as used for cookie max-age
func (d Duration) WholeSeconds() int {
	return int(d.Duration / time.Second)
}
