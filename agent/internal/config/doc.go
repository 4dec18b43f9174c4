// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent, Log}: full config tree parsed from YAML
//   - AgentConfig: server_endpoint, scrape_interval, window, ship_interval,
//     buffer_size, batch_size, metrics, scoring, stations [], server_auth
//   - Station: id, record_id, endpoint, labels, downtime_reason, auth, tls
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none), cert/key/ca files,
//     header, key_env, token_env, password_env; Key(), Token() and Password()
//     resolve from environment variables
//
// Load(path) reads the YAML file, applies defaults (1m scrape, 1h window,
// 15s ship, 1000 buffer, 100 per batch, station_* counter names), then
// validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify on the parent directory and calls
// onChange with the newly parsed Config, so record assignments can change
// at shift start without restarting the agent.
package config
