package config

import (
	"fmt"

	"github.com/breeze-rmm/simulator-server/internal/logging"
)

var log = logging.L("config")

const (
	minFPS = 1
	maxFPS = 120

	minQuality = 0.1
	maxQuality = 1.0
)

// Validate clamps out-of-range values to the documented bounds and returns
// every adjustment or problem found. A missing UDID is the one condition
// that cannot be clamped away; callers treat that as BadArgument and exit 1.
func (c *Config) Validate() []error {
	var errs []error

	if c.UDID == "" {
		errs = append(errs, fmt.Errorf("--udid is required"))
	}

	if c.FPS < minFPS {
		errs = append(errs, fmt.Errorf("fps %d is below minimum %d, clamping", c.FPS, minFPS))
		c.FPS = minFPS
	} else if c.FPS > maxFPS {
		errs = append(errs, fmt.Errorf("fps %d exceeds maximum %d, clamping", c.FPS, maxFPS))
		c.FPS = maxFPS
	}

	if c.Quality < minQuality {
		errs = append(errs, fmt.Errorf("quality %v is below minimum %v, clamping", c.Quality, minQuality))
		c.Quality = minQuality
	} else if c.Quality > maxQuality {
		errs = append(errs, fmt.Errorf("quality %v exceeds maximum %v, clamping", c.Quality, maxQuality))
		c.Quality = maxQuality
	}

	for _, err := range errs {
		log.Warn("config validation", "error", err)
	}

	return errs
}
