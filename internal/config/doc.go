// Package config loads the service configuration from the environment.
//
// A .env file in the working directory is applied first when present;
// variables already set in the process environment win. Each command loads
// only what it needs: LoadServer for serve, LoadMaintenance for migrate and
// sweep.
package config
