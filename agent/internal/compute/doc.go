// Package compute turns raw station counter readings into hourly updates.
//
// engine.go provides the stateful Engine that keeps per-station counter
// baselines, derives deltas between scrape cycles (a counter that went
// backwards after a station restart counts as zero) and sums them into
// fixed windows, one hour by default. Process returns a Window each time a
// reading crosses into the next window; Flush closes partial windows at
// shutdown. Engine.Process accepts an injectable time.Time so tests are
// deterministic.
//
// score.go provides Provisional, which scores a window with the shared
// efficiency formula using the observed coverage as hours worked.
package compute
