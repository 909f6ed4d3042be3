// Package env handles environment variables and variable resolution for hitfetch
// request files.
//
// It provides functionality for:
//   - Loading environment files (.env, .env.local) with godotenv
//   - Variable interpolation using {{variable}} and {{$ENV_VAR}} syntax
//   - Generated values (uuid, timestamp, now)
//   - Named environments declared in request files
package env
