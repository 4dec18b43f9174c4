// Package security inspects the TLS certificates of the server and station
// endpoints. The agent runs CheckAll at startup and after each config reload
// and logs certificates that are expired, expiring or unreachable.
package security
