package uptime

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every ConfigError via errors.Is.
var ErrConfiguration = errors.New("uptime: configuration error")

// ConfigError reports bad per-store configuration such as an unknown timezone
// or a malformed business-hours row. It never affects other stores.
type ConfigError struct {
	StoreID string
	Field   string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("store %s: invalid %s: %v", e.StoreID, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is reports whether target is ErrConfiguration.
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }
