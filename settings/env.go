package settings

import (
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// Defaults are the process-start values for every recognized setting.
type Defaults struct {
	CaptchaPeriod             int64         `env:"GUARD_CAPTCHA_PERIOD"               envDefault:"5"`
	InitialAccountPeriodTotal int64         `env:"GUARD_INITIAL_ACCOUNT_PERIOD_TOTAL" envDefault:"10"`
	InitialAccountPeriodLimit int64         `env:"GUARD_INITIAL_ACCOUNT_PERIOD_LIMIT" envDefault:"3"`
	InitialAccountPeriodWidth time.Duration `env:"GUARD_INITIAL_ACCOUNT_PERIOD_WIDTH" envDefault:"24h"`
	RecoveryTokenWidth        time.Duration `env:"GUARD_RECOVERY_TOKEN_WIDTH"         envDefault:"24h"`
	MaxPostLength             int64         `env:"GUARD_MAX_POST_LENGTH"              envDefault:"10000"`
}

// LoadDefaults parses Defaults from the environment.
func LoadDefaults() (Defaults, error) {
	var d Defaults
	if err := env.Parse(&d); err != nil {
		return Defaults{}, err
	}
	return d, nil
}

// Values renders d as storable strings.
func (d Defaults) Values() map[string]string {
	return map[string]string{
		KeyCaptchaPeriod:             strconv.FormatInt(d.CaptchaPeriod, 10),
		KeyInitialAccountPeriodTotal: strconv.FormatInt(d.InitialAccountPeriodTotal, 10),
		KeyInitialAccountPeriodLimit: strconv.FormatInt(d.InitialAccountPeriodLimit, 10),
		KeyInitialAccountPeriodWidth: d.InitialAccountPeriodWidth.String(),
		KeyRecoveryTokenWidth:        d.RecoveryTokenWidth.String(),
		KeyMaxPostLength:             strconv.FormatInt(d.MaxPostLength, 10),
	}
}

// Memory returns a runtime-mutable store seeded with d.
func (d Defaults) Memory() *Memory {
	return NewMemory(d.Values())
}

// FromEnv is the composition-root shortcut: parse Defaults and wrap them
// in a Memory store.
func FromEnv() (*Memory, error) {
	d, err := LoadDefaults()
	if err != nil {
		return nil, err
	}
	return d.Memory(), nil
}
