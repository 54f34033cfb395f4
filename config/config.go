// Package config reads store and notifier settings from the environment.
//
//	GENCACHE_SWEEP_INTERVAL=30s
//	GENCACHE_DEFAULT_CAPACITY=10000
//	GENCACHE_CAPACITIES=user:1000,session:500
//	GENCACHE_DEFAULT_SLIDING=10m
//	GENCACHE_REDIS_URL=redis://localhost:6379/0
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/unkn0wn-root/gencache"
	"github.com/unkn0wn-root/gencache/codec"
)

var ErrParsingConfig = errors.New("config: failed to parse environment")

type Config struct {
	SweepInterval   time.Duration  `env:"GENCACHE_SWEEP_INTERVAL" envDefault:"1m"`   // <0 disables the background sweeper
	DefaultCapacity int            `env:"GENCACHE_DEFAULT_CAPACITY" envDefault:"0"`  // 0 = unbounded
	Capacities      map[string]int `env:"GENCACHE_CAPACITIES"`                       // ns:capacity pairs, comma separated
	DefaultSliding  time.Duration  `env:"GENCACHE_DEFAULT_SLIDING"`                  // 0 = entries never expire by default
	LowWaterRatio   float64        `env:"GENCACHE_LOW_WATER_RATIO" envDefault:"0.5"` // capacity pass shrinks to capacity*ratio
	Shards          int            `env:"GENCACHE_SHARDS" envDefault:"16"`
	LogLevel        string         `env:"GENCACHE_LOG_LEVEL" envDefault:"info"`

	Redis Redis `envPrefix:"GENCACHE_REDIS_"`
}

// Redis configures removal-event publishing. An empty URL disables it.
type Redis struct {
	URL       string        `env:"URL"`
	Channel   string        `env:"CHANNEL" envDefault:"gencache:removals"`
	Codec     string        `env:"CODEC" envDefault:"msgpack"`
	QueueSize int           `env:"QUEUE_SIZE" envDefault:"1024"`
	BatchSize int           `env:"BATCH_SIZE" envDefault:"64"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"2s"`
}

func (r Redis) Enabled() bool { return r.URL != "" }

func (r Redis) CodecID() (codec.ID, error) { return codec.ParseID(r.Codec) }

// Load reads the given dotenv files (or ./.env when none are named) into
// the process environment without overriding it, then parses Config.
// A missing default .env is not an error.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load dotenv: %w", err)
		}
	}
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return c, c.Validate()
}

// FromMap parses Config from an explicit environment instead of the process one.
func FromMap(environ map[string]string) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Environment: environ}); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.DefaultCapacity < 0 {
		errs = append(errs, fmt.Errorf("GENCACHE_DEFAULT_CAPACITY %d is negative", c.DefaultCapacity))
	}
	for ns, n := range c.Capacities {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("GENCACHE_CAPACITIES %s=%d must be positive", ns, n))
		}
	}
	if c.LowWaterRatio <= 0 || c.LowWaterRatio > 1 {
		errs = append(errs, fmt.Errorf("GENCACHE_LOW_WATER_RATIO %v outside (0,1]", c.LowWaterRatio))
	}
	if c.DefaultSliding < 0 {
		errs = append(errs, fmt.Errorf("GENCACHE_DEFAULT_SLIDING %v is negative", c.DefaultSliding))
	}
	if c.Redis.Enabled() {
		if _, err := c.Redis.CodecID(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options maps the config onto gencache.Options. Logger, Hooks and clocks
// are left for the caller.
func (c Config) Options() gencache.Options {
	o := gencache.Options{
		SweepInterval:   c.SweepInterval,
		DefaultCapacity: c.DefaultCapacity,
		LowWaterRatio:   c.LowWaterRatio,
		Shards:          c.Shards,
	}
	if len(c.Capacities) > 0 {
		o.Capacities = make(map[string]int, len(c.Capacities))
		for ns, n := range c.Capacities {
			o.Capacities[ns] = n
		}
	}
	if c.DefaultSliding > 0 {
		o.DefaultExpiration = gencache.Sliding(c.DefaultSliding)
	}
	return o
}
