// internal/workers/review/record-decision/config.go
package recorddecision

import (
	"time"

	"applicant-portal/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// LoadConfig derives the handler settings from the worker section.
func LoadConfig(wcfg config.WorkerConfig) *Config {
	timeout := config.GetDuration(wcfg.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Config{Timeout: timeout}
}
