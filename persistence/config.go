package persistence

import "time"

// Config controls debouncing and write retries.
type Config struct {
	Debounce      time.Duration `yaml:"debounce"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInitial  time.Duration `yaml:"retry_initial"`
	RetryMax      time.Duration `yaml:"retry_max"`
}

func DefaultConfig() Config {
	return Config{
		Debounce:      500 * time.Millisecond,
		WriteTimeout:  10 * time.Second,
		ReadTimeout:   10 * time.Second,
		RetryAttempts: 3,
		RetryInitial:  250 * time.Millisecond,
		RetryMax:      5 * time.Second,
	}
}

// withDefaults fills zero or negative fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 1
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = d.RetryInitial
	}
	if c.RetryMax <= 0 {
		c.RetryMax = d.RetryMax
	}
	return c
}
