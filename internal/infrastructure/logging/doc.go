// Package logging builds the zap loggers used across the host.
//
// Production loggers write JSON to stderr; development loggers write a
// colored console format. Either way stdout stays free for CLI output.
//
// Components accept a plain *zap.Logger and call OrNop, so a nil logger is
// always safe. The field helpers keep the keys used for correlation
// (app_id, trace) identical in every package:
//
//	log := logging.OrNop(logger).With(logging.AppID(handle.Manifest.ID))
//	log.Debug("command dispatched", logging.Trace(trace))
package logging
