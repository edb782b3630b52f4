package env

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var Env map[string]string

// GetEnv prefers the loaded .env file over the process environment so a
// container can still override single values.
func GetEnv(key, def string) string {
	if val, ok := Env[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt returns def for missing, malformed or non-positive values.
func GetEnvInt(key string, def int) int {
	if v, err := strconv.Atoi(GetEnv(key, strconv.Itoa(def))); err == nil && v > 0 {
		return v
	}
	return def
}

func SetupEnvFile() {
	candidates := []string{
		".env",
		"../../.env",    // from cmd/keygate or cmd/migrate
		"../../../.env", // deeper nesting, e.g. package tests
	}

	for _, candidate := range candidates {
		if loaded, err := godotenv.Read(candidate); err == nil {
			Env = loaded
			return
		}
	}

	panic("No .env file found in any of the expected locations")
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
