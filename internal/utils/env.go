package utils

import (
	"os"
	"strconv"
	"time"
)

// SafeEnv returns the environment variable value for key, or fallback if empty.
func SafeEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// SafeEnvInt returns the integer value of the environment variable for key,
// or fallback if unset or unparsable.
func SafeEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// SafeEnvSeconds reads a duration expressed in seconds (integer or decimal),
// or fallback if unset or unparsable.
func SafeEnvSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return fallback
	}
	return time.Duration(f * float64(time.Second))
}
