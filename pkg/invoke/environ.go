package invoke

import (
	"os"
	"sync"
)

// envMu serializes every change to the process environment. A child
// process inherits the environment at start, so the overrides of one
// invocation must not be visible to, or restored under, another.
var envMu sync.Mutex

type savedVar struct {
	value   string
	present bool
}

// withEnv applies overrides to the process environment, calls fn, and
// restores every overridden variable to its prior state. Variables that
// were absent are unset again. The caller must hold envMu.
func withEnv(overrides map[string]string, fn func() error) (err error) {
	saved := make(map[string]savedVar, len(overrides))
	defer func() {
		for k, s := range saved {
			if s.present {
				_ = os.Setenv(k, s.value)
			} else {
				_ = os.Unsetenv(k)
			}
		}
	}()

	for k, v := range overrides {
		prev, ok := os.LookupEnv(k)
		saved[k] = savedVar{value: prev, present: ok}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	return fn()
}

// WithEnv runs fn with overrides applied to the process environment and
// restores the environment afterwards, whether fn fails or not.
func WithEnv(overrides map[string]string, fn func() error) error {
	envMu.Lock()
	defer envMu.Unlock()
	return withEnv(overrides, fn)
}
