// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
	"github.com/vnykmshr/fibercore/pkg/engine"
	"github.com/vnykmshr/fibercore/pkg/metrics"
	"github.com/vnykmshr/fibercore/pkg/scheduling/fiber"
	"github.com/vnykmshr/fibercore/pkg/scheduling/hybrid"
	"github.com/vnykmshr/fibercore/pkg/scheduling/watchdog"
	"github.com/vnykmshr/fibercore/pkg/scheduling/workerpool"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "fibercore.db"

	envStackSize          = "FIBERCORE_STACK_SIZE"
	envSpareFibers        = "FIBERCORE_SPARE_FIBERS"
	envMaxFibers          = "FIBERCORE_MAX_FIBERS"
	envPreempt            = "FIBERCORE_PREEMPT"
	envPreemptInterval    = "FIBERCORE_PREEMPT_INTERVAL"
	envPoolMultiplier     = "FIBERCORE_POOL_MULTIPLIER"
	envPoolMinParallelism = "FIBERCORE_POOL_MIN_PARALLELISM"
	envPoolIdleTimeout    = "FIBERCORE_POOL_IDLE_TIMEOUT"
	envLogLevel           = "FIBERCORE_LOG_LEVEL"
	envListenAddr         = "FIBERCORE_LISTEN_ADDR"
	envRedisAddr          = "FIBERCORE_REDIS_ADDR"
	envDBPath             = "FIBERCORE_DB_PATH"
)

// Config holds settings loaded from environment variables.
type Config struct {
	StackSize          int
	SpareFibers        int
	MaxFibers          int
	Preempt            bool
	PreemptInterval    time.Duration
	PoolMultiplier     int
	PoolMinParallelism int
	PoolIdleTimeout    time.Duration
	LogLevel           logrus.Level
	ListenAddr         string
	RedisAddr          string // empty disables the kv client
	DBPath             string
}

// Default returns the settings used when no variable is set.
func Default() Config {
	return Config{
		StackSize:          fiber.DefaultStackSize,
		SpareFibers:        fiber.DefaultSpareFibers,
		MaxFibers:          fiber.DefaultMaxFibers,
		PreemptInterval:    watchdog.DefaultInterval,
		PoolMultiplier:     workerpool.DefaultMultiplier,
		PoolMinParallelism: workerpool.DefaultMinParallelism,
		PoolIdleTimeout:    workerpool.DefaultIdleTimeout,
		LogLevel:           logrus.InfoLevel,
		ListenAddr:         defaultListenAddr,
		DBPath:             defaultDBPath,
	}
}

// Load reads configuration from environment variables with sensible
// defaults. Invalid values keep their default and are reported together in
// the returned error.
func Load() (Config, error) {
	cfg := Default()
	var errs []error

	intVar(envStackSize, &cfg.StackSize, fiber.MinStackSize, &errs)
	intVar(envSpareFibers, &cfg.SpareFibers, 1, &errs)
	intVar(envMaxFibers, &cfg.MaxFibers, 1, &errs)
	intVar(envPoolMultiplier, &cfg.PoolMultiplier, 1, &errs)
	intVar(envPoolMinParallelism, &cfg.PoolMinParallelism, 1, &errs)
	durationVar(envPreemptInterval, &cfg.PreemptInterval, &errs)
	durationVar(envPoolIdleTimeout, &cfg.PoolIdleTimeout, &errs)

	if v := os.Getenv(envPreempt); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, invalid(envPreempt, v, "not a boolean"))
		} else {
			cfg.Preempt = b
		}
	}
	if v := os.Getenv(envLogLevel); v != "" {
		level, err := logrus.ParseLevel(strings.ToLower(v))
		if err != nil {
			errs = append(errs, invalid(envLogLevel, v, "unknown level"))
		} else {
			cfg.LogLevel = level
		}
	}
	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envRedisAddr); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}

	return cfg, errors.Join(errs...)
}

func invalid(name, value, reason string) error {
	return gferrors.NewValidationError("config", name, value, reason).
		WithHint("using the default")
}

func intVar(name string, dst *int, min int, errs *[]error) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	switch {
	case err != nil:
		*errs = append(*errs, invalid(name, v, "not an integer"))
	case n < min:
		*errs = append(*errs, invalid(name, v, fmt.Sprintf("must be at least %d", min)))
	default:
		*dst = n
	}
}

func durationVar(name string, dst *time.Duration, errs *[]error) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	switch {
	case err != nil:
		*errs = append(*errs, invalid(name, v, "not a duration"))
	case d <= 0:
		*errs = append(*errs, invalid(name, v, "must be positive"))
	default:
		*dst = d
	}
}

// NewLogger creates a structured JSON logger writing to w at level.
func NewLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(level)
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	return log
}

// Runtime builds the hybrid runtime configuration for eng.
func (c Config) Runtime(eng engine.Engine, log logrus.FieldLogger, reg *metrics.Registry) hybrid.Config {
	rc := hybrid.DefaultConfig(eng)
	rc.Fiber.StackSize = c.StackSize
	rc.Fiber.SpareFibers = c.SpareFibers
	rc.Fiber.MaxFibers = c.MaxFibers
	rc.Background.Multiplier = c.PoolMultiplier
	rc.Background.MinParallelism = c.PoolMinParallelism
	rc.Background.IdleTimeout = c.PoolIdleTimeout
	rc.Watchdog.Interval = c.PreemptInterval
	rc.Preemptive = c.Preempt
	rc.Logger = log
	rc.Metrics = reg
	return rc
}
