package config

import (
	"context"

	"github.com/floorscore/floorscore/pkg/filewatch"
)

// Watch reloads path whenever it changes and passes the new Config to
// onChange. It runs until ctx is cancelled. A reload that fails to parse or
// validate is logged and skipped; the caller keeps its current config.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return filewatch.Watch(ctx, path, Load, onChange)
}
