// Package config loads the server configuration file.
//
// Sections:
//   - server    listener port, auth (apikey|bearer|none), log rotation, dashboard push interval
//   - scoring   default efficiency parameters plus per-skill profiles
//   - storage   record store backend (memory|sqlite) and database path
//   - alerts    threshold rules over scored records and webhook targets
//   - report    list page size (default 5)
//
// Load(path) applies defaults before unmarshalling, then validates. Watch
// reloads the file on change; the server applies the new scoring section live.
package config
