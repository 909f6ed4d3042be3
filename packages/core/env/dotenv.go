package env

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// LoadDotEnv parses a .env file and returns key-value pairs without touching
// the process environment.
func LoadDotEnv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read env file")
	}
	return vars, nil
}

// LoadAndExportDotEnv parses a .env file, returns key-value pairs,
// and exports them to the OS environment for {{$VAR}} resolution.
// Variables are only exported if not already set in the OS environment.
func LoadAndExportDotEnv(path string) (map[string]string, error) {
	vars, err := LoadDotEnv(path)
	if err != nil {
		return nil, err
	}

	for k, v := range vars {
		if _, set := os.LookupEnv(k); !set {
			_ = os.Setenv(k, v) // only fails for invalid key names
		}
	}

	return vars, nil
}

// LoadDefaultDotEnv loads .env and .env.local from dir when present; values in
// .env.local win.
func LoadDefaultDotEnv(dir string) (map[string]string, error) {
	result := make(map[string]string)
	for _, name := range []string{".env", ".env.local"} {
		path := dir + string(os.PathSeparator) + name
		if _, err := os.Stat(path); err != nil {
			continue
		}
		vars, err := LoadDotEnv(path)
		if err != nil {
			return nil, err
		}
		for k, v := range vars {
			result[k] = v
		}
	}
	return result, nil
}
