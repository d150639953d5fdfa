// Package config loads firmgen settings from defaults, an optional YAML file and
// FIRMGEN_ environment variables, validates them, and can watch the file for changes.
package config
