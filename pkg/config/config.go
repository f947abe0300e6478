// Package config lit la configuration : fichier .env optionnel puis variables d'environnement.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
)

// Config regroupe les paramètres du binaire, issus de l'environnement.
type Config struct {
	DSN         string
	BatchSize   int
	Workers     int
	UploadedBy  string
	HTTPAddr    string
	Environment string
	CORSOrigins []string
}

// Load charge .env (s'il existe) puis lit les variables RFV_*.
func Load(files ...string) (*Config, error) {
	// .env est optionnel
	_ = godotenv.Load(files...)

	batch, err := getEnvInt("RFV_BATCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	workers, err := getEnvInt("RFV_WORKERS", 1)
	if err != nil {
		return nil, err
	}

	return &Config{
		DSN:         getEnv("RFV_DSN", ""),
		BatchSize:   batch,
		Workers:     workers,
		UploadedBy:  getEnv("RFV_UPLOADED_BY", currentUser()),
		HTTPAddr:    getEnv("RFV_HTTP_ADDR", ":8080"),
		Environment: getEnv("RFV_ENV", "development"),
		CORSOrigins: splitList(getEnv("RFV_CORS_ORIGINS", "*")),
	}, nil
}

// Production indique un environnement de production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, eris.Errorf("%s: positive integer expected, got %q", key, raw)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "rfv-cli"
}
