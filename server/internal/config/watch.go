package config

import (
	"context"

	"github.com/floorscore/floorscore/pkg/filewatch"
)

// Watch reloads path whenever it changes, including saves that rename a
// temp file over it, and calls onChange with the new Config. It runs until
// ctx is cancelled.
//
// If a reload fails (invalid YAML or bad scoring parameters), the error is
// logged and onChange is not called, so the previous config stays active.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return filewatch.Watch(ctx, path, Load, onChange)
}
