// Package config loads the application configuration for folio.
//
// Values come from, in increasing precedence: built-in defaults, a YAML
// file, a .env file and FOLIO_* environment variables. Command-line flags
// are applied by the caller on top of the result.
package config
