package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// envFiles are tried in order; the first file found wins.
var envFiles = []string{".env", ".env.local"}

var errNoEnvFile = errors.New("no .env file found")

// loadEnvFiles loads KEY=VALUE pairs into the process environment.
// Existing variables are never overridden.
func loadEnvFiles() error {
	for _, p := range envFiles {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		return nil
	}
	return errNoEnvFile
}
