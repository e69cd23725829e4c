// Package config loads and validates the YAML configuration shared by the
// voxmail client CLI and the workflow backend. Secrets can be supplied via
// environment variables (optionally from a .env file) instead of the file.
package config
