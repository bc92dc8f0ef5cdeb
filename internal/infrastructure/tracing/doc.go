/*
Package tracing records lightweight spans for HTTP requests and served
bridge commands.

# Overview

A served command gets one span whose trace id is the envelope's own trace,
so a log search for trc_... shows dispatch, handler and completion together.
Finished spans carry the envelope timeline and are logged through zap by a
background collector.

# Usage

	tracer := tracing.New("webapp", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartCommand(ctx, req, appID)
	resp := serve(ctx, req)
	tracer.FinishCommand(span, resp)

# Trace Format

HTTP propagation uses X-Trace-ID and X-Span-ID headers.

# Performance

Spans are buffered (1000) and dropped with a warning when the buffer is full.
*/
package tracing
