// Package config resolves runtime-tunable knobs from the environment.
//
// The harness never sets these; every default reproduces the distilled
// behaviour exactly, so a node run with an empty environment is unaffected.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joeycumines/go-glomers/internal/obslog"
)

// UniqueIDStrategy selects how the unique-id node mints ids.
type UniqueIDStrategy string

const (
	// StrategyCounter reproduces "{node_id}-{msg_id}".
	StrategyCounter UniqueIDStrategy = "counter"
	// StrategyUUID mints an RFC 4122 random UUID per request.
	StrategyUUID UniqueIDStrategy = "uuid"
)

// Config holds every environment-resolved knob used by any node binary.
// Each binary reads only the fields relevant to its workload.
type Config struct {
	MaxPoll             int
	GossipInterval      time.Duration
	CounterSyncInterval time.Duration
	LogLevel            obslog.Level
	UniqueIDStrategy    UniqueIDStrategy
}

// Load resolves a Config from the process environment, applying defaults for
// anything unset. It fails fast on malformed overrides rather than limping
// along with a half-parsed value.
func Load() (Config, error) {
	cfg := Config{
		MaxPoll:             5,
		GossipInterval:      300 * time.Millisecond,
		CounterSyncInterval: time.Second,
		LogLevel:            0, // resolved below via ParseLevel("info")
		UniqueIDStrategy:    StrategyCounter,
	}

	if lvl, ok := obslog.ParseLevel("info"); ok {
		cfg.LogLevel = lvl
	}

	if v, ok := os.LookupEnv("NODE_MAX_POLL"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: NODE_MAX_POLL must be a positive integer, got %q", v)
		}
		cfg.MaxPoll = n
	}

	if v, ok := os.LookupEnv("NODE_GOSSIP_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("config: NODE_GOSSIP_INTERVAL must be a positive duration, got %q", v)
		}
		cfg.GossipInterval = d
	}

	if v, ok := os.LookupEnv("NODE_COUNTER_SYNC_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("config: NODE_COUNTER_SYNC_INTERVAL must be a positive duration, got %q", v)
		}
		cfg.CounterSyncInterval = d
	}

	if v, ok := os.LookupEnv("NODE_LOG_LEVEL"); ok {
		lvl, ok := obslog.ParseLevel(v)
		if !ok {
			return Config{}, fmt.Errorf("config: NODE_LOG_LEVEL has unknown value %q", v)
		}
		cfg.LogLevel = lvl
	}

	if v, ok := os.LookupEnv("NODE_UNIQUE_ID_STRATEGY"); ok {
		switch UniqueIDStrategy(v) {
		case StrategyCounter, StrategyUUID:
			cfg.UniqueIDStrategy = UniqueIDStrategy(v)
		default:
			return Config{}, fmt.Errorf("config: NODE_UNIQUE_ID_STRATEGY has unknown value %q", v)
		}
	}

	return cfg, nil
}
