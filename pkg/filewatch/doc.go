// Package filewatch reloads a config file when it changes on disk. It is
// shared by the server and agent config packages.
package filewatch
