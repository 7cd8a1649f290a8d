package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from a dotenv file into the process
// environment. Variables that are already set are not overridden, and a
// missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// WriteDotEnv merges values into the dotenv file at path, creating it if
// needed. Existing keys not present in values are preserved.
func WriteDotEnv(path string, values map[string]string) error {
	existing, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		existing = map[string]string{}
	}

	for k, v := range values {
		existing[k] = v
	}

	if err := godotenv.Write(existing, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
