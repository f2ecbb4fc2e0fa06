// Package merge enforces source precedence when observation and forecast
// grids land in a grid file.
//
// Three tiers feed a dataset, highest precedence first: URMA (final
// reanalysis), RTMA (near-real-time reanalysis) and forecast. Each dataset
// carries a watermark set recording how far every tier has committed:
//
//	urma_end_time     last step written by URMA
//	rtma_end_time     last step written by RTMA; deleted once URMA catches up
//	last_obs_time     max(urma_end_time, rtma_end_time) over the dataset life
//	fcast_start_time  first forecast step still standing
//	fcast_end_time    last forecast step
//	last_valid_time   furthest step holding any usable value
//
// A Controller rejects writes that would overwrite a higher tier, truncates
// or deletes the forecast window as observations arrive, and appends a
// provenance record per written step tagged with the tier name.
//
// Every write runs precedence checks, the slice write, the provenance append
// and the watermark update in that order. The sequence is not atomic: a
// failure after the slice write leaves data committed and watermarks stale.
// Controller.Validate re-checks the watermark invariants after such a failure.
package merge
