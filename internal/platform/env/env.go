// Package env centralizes environment-variable reads so defaults and parse
// failures are logged consistently across every subsystem's LoadConfig.
package env

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oxbowlabs/vqueryd/internal/platform/logger"
)

func GetEnv(key, defaultVal string, log *logger.Logger) string {
	log = log.With("env_var", key)
	val, ok := os.LookupEnv(key)
	if !ok {
		log.Debug("environment variable not found, using default", "default", defaultVal)
		return defaultVal
	}
	return val
}

func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	log = log.With("env_var", key)
	raw, ok := os.LookupEnv(key)
	if !ok {
		log.Debug("environment variable not found, using default", "default", defaultVal)
		return defaultVal
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.Debug("environment variable could not be parsed as int, using default", "value", raw, "default", defaultVal)
		return defaultVal
	}
	return n
}

func GetEnvAsBool(key string, defaultVal bool, log *logger.Logger) bool {
	log = log.With("env_var", key)
	raw, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultVal
	}
	return strings.EqualFold(raw, "true") || raw == "1" || strings.EqualFold(raw, "yes")
}

func GetEnvAsDuration(key string, defaultVal time.Duration, log *logger.Logger) time.Duration {
	log = log.With("env_var", key)
	raw, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	secs, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.Debug("environment variable could not be parsed as seconds, using default", "value", raw)
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
