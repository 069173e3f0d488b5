// Package envfile reads optional dotenv files into the environment overlay
// applied to every task's commands.
package envfile

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Load reads the dotenv file at path into a map.
//
// A missing file is not an error: local checkouts frequently have no .env.
// An unreadable or malformed file is an error, since silently dropping
// declared configuration would change task behavior.
//
// The host process environment is never mutated.
func Load(path string) (map[string]string, error) {
	if path == "" {
		return nil, fmt.Errorf("env file path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("stat env file: %w", err)
	}

	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("parse env file %s: %w", path, err)
	}
	return vars, nil
}

// Merge overlays the given maps left to right, later maps winning.
func Merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
