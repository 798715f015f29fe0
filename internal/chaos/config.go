package chaos

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds fault injection configuration for the tick stream.
type Config struct {
	Enabled  bool
	Profile  string
	DropPct  int
	StalePct int
	CrossPct int
	Seed     int64
}

// LoadConfig loads fault injection configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Enabled:  getEnvAsBool("CHAOS_ENABLED", false),
		Profile:  getEnvAsString("CHAOS_PROFILE", ""),
		DropPct:  getEnvAsInt("CHAOS_DROP_PCT", 0),
		StalePct: getEnvAsInt("CHAOS_STALE_PCT", 0),
		CrossPct: getEnvAsInt("CHAOS_CROSS_PCT", 0),
		Seed:     getEnvAsInt64("CHAOS_SEED", 1),
	}
}

// ParseProfile parses a profile string like "drop-pct=10,stale-pct=5,cross-pct=2"
func ParseProfile(profile string) (dropPct, stalePct, crossPct int, err error) {
	if profile == "" {
		return 0, 0, 0, nil
	}

	for _, part := range strings.Split(profile, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "drop-pct="):
			dropPct, err = strconv.Atoi(strings.TrimPrefix(part, "drop-pct="))
			if err != nil {
				return 0, 0, 0, fmt.Errorf("invalid drop-pct: %w", err)
			}
		case strings.HasPrefix(part, "stale-pct="):
			stalePct, err = strconv.Atoi(strings.TrimPrefix(part, "stale-pct="))
			if err != nil {
				return 0, 0, 0, fmt.Errorf("invalid stale-pct: %w", err)
			}
		case strings.HasPrefix(part, "cross-pct="):
			crossPct, err = strconv.Atoi(strings.TrimPrefix(part, "cross-pct="))
			if err != nil {
				return 0, 0, 0, fmt.Errorf("invalid cross-pct: %w", err)
			}
		}
	}

	return dropPct, stalePct, crossPct, nil
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
