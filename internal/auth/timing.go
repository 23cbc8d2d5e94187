package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig bounds the delay applied to failed logins
type TimingConfig struct {
	Min            time.Duration
	Max            time.Duration
	DelayOnSuccess bool
}

// TimingDelay makes "unknown account", "wrong password" and "locked" take
// indistinguishable time
type TimingDelay struct {
	config TimingConfig
	sleep  func(time.Duration)
	now    func() time.Time
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	if config.Max < config.Min {
		config.Max = config.Min
	}
	return &TimingDelay{
		config: config,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// cryptoRandIntn returns a uniform value in [0, n) from crypto/rand
func cryptoRandIntn(n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(randomBytes) % uint64(n)), nil
}

// Delay picks a duration in [Min, Max]
func (td *TimingDelay) Delay() time.Duration {
	spread := int64(td.config.Max - td.config.Min)
	jitter, err := cryptoRandIntn(spread + 1)
	if err != nil {
		jitter = 0
	}
	return td.config.Min + time.Duration(jitter)
}

// WaitFrom sleeps until at least Delay has elapsed since start, so the
// total time of a failed login does not depend on which check failed.
// Successes are only delayed when DelayOnSuccess is set.
func (td *TimingDelay) WaitFrom(start time.Time, success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}
	if remaining := td.Delay() - td.now().Sub(start); remaining > 0 {
		td.sleep(remaining)
	}
}
