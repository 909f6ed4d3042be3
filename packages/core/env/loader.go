package env

import (
	"os"
	"strings"
)

// Environment is a named set of variables, as declared in a request file.
type Environment struct {
	Name      string
	Variables map[string]any
}

// LoadEnvironment picks envName out of the environments declared in a request
// file. An unknown name yields an empty environment.
func LoadEnvironment(envName string, declared map[string]map[string]any) *Environment {
	env := &Environment{
		Name:      envName,
		Variables: make(map[string]any),
	}

	if vars, ok := declared[envName]; ok {
		for k, v := range vars {
			env.Variables[k] = v
		}
	}

	return env
}

func MergeVariables(sources ...map[string]any) map[string]any {
	result := make(map[string]any)
	for _, src := range sources {
		for k, v := range src {
			result[k] = v
		}
	}
	return result
}

// StringVariables converts .env style pairs for MergeVariables.
func StringVariables(vars map[string]string) map[string]any {
	result := make(map[string]any, len(vars))
	for k, v := range vars {
		result[k] = v
	}
	return result
}

// LoadSystemEnv returns process variables starting with prefix, with the
// prefix stripped. An empty prefix returns everything.
func LoadSystemEnv(prefix string) map[string]any {
	result := make(map[string]any)
	for _, e := range os.Environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if prefix == "" {
			result[key] = value
		} else if len(key) > len(prefix) && strings.HasPrefix(key, prefix) {
			result[key[len(prefix):]] = value
		}
	}
	return result
}
