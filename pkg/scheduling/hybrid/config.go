package hybrid

import (
	"github.com/sirupsen/logrus"

	"github.com/vnykmshr/fibercore/pkg/common/validation"
	"github.com/vnykmshr/fibercore/pkg/engine"
	"github.com/vnykmshr/fibercore/pkg/metrics"
	"github.com/vnykmshr/fibercore/pkg/scheduling/fiber"
	"github.com/vnykmshr/fibercore/pkg/scheduling/watchdog"
	"github.com/vnykmshr/fibercore/pkg/scheduling/workerpool"
)

// Config aggregates the configuration of every pool the runtime owns.
// Logger and Metrics are handed to sub-configs that leave them unset.
type Config struct {
	Engine     engine.Engine
	Fiber      fiber.Config
	Background workerpool.Config
	Watchdog   watchdog.Config

	// Preemptive starts the watchdog with the runtime. Off by default.
	Preemptive bool

	Logger  logrus.FieldLogger
	Metrics *metrics.Registry
}

// DefaultConfig returns the runtime configuration for eng. The watchdog is
// configured but not started; set Preemptive to run it.
func DefaultConfig(eng engine.Engine) Config {
	return Config{
		Engine:     eng,
		Fiber:      fiber.DefaultConfig(eng),
		Background: workerpool.DefaultConfig(),
		Watchdog: watchdog.Config{
			Interval:   watchdog.DefaultInterval,
			StallPolls: watchdog.DefaultStallPolls,
		},
	}
}

func (c Config) resolve() (Config, error) {
	if c.Engine == nil {
		c.Engine = c.Fiber.Engine
	}
	if c.Engine == nil {
		return c, validation.ValidateNotNil("hybrid", "engine", nil)
	}
	c.Fiber.Engine = c.Engine

	if c.Fiber.Logger == nil {
		c.Fiber.Logger = c.Logger
	}
	if c.Background.Logger == nil {
		c.Background.Logger = c.Logger
	}
	if c.Watchdog.Logger == nil {
		c.Watchdog.Logger = c.Logger
	}
	if c.Fiber.Metrics == nil {
		c.Fiber.Metrics = c.Metrics
	}
	if c.Background.Metrics == nil {
		c.Background.Metrics = c.Metrics
	}
	if c.Watchdog.Metrics == nil {
		c.Watchdog.Metrics = c.Metrics
	}
	if c.Watchdog.Name == "" {
		c.Watchdog.Name = c.Fiber.Name
	}
	return c, nil
}
