package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment overrides. They win over the YAML file so containers can
// inject secrets without rewriting it.
const (
	EnvKey       = "RTSPLIVE_KEY"
	EnvPort      = "RTSPLIVE_PORT"
	EnvDataDir   = "RTSPLIVE_DATA_DIR"
	EnvAssetsDir = "RTSPLIVE_ASSETS_DIR"
	EnvFFmpegBin = "RTSPLIVE_FFMPEG_BIN"
	EnvRedisAddr = "RTSPLIVE_REDIS_ADDRESS"
	EnvLogLevel  = "RTSPLIVE_LOG_LEVEL"
)

// LoadDotEnv reads .env files into the process environment. A missing file
// is not an error for callers; they can ignore the result and fall back to
// the system environment.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

func applyEnv(c *Config) {
	c.Key = getEnv(EnvKey, c.Key)
	c.Port = getEnvInt(EnvPort, c.Port)
	c.DataDir = getEnv(EnvDataDir, c.DataDir)
	c.AssetsDir = getEnv(EnvAssetsDir, c.AssetsDir)
	c.FFmpegBin = getEnv(EnvFFmpegBin, c.FFmpegBin)
	c.RedisAddr = getEnv(EnvRedisAddr, c.RedisAddr)
	c.LogLevel = getEnv(EnvLogLevel, c.LogLevel)
}

func getEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}
