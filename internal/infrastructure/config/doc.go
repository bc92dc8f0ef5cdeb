// Package config provides 12-factor configuration management for the host.
//
// Configuration is read from environment variables by envconfig. Invalid
// policy names fail Load rather than falling back. The webapp CLI applies
// its --log-level and --dev flags on top.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Store: Root of the per-application persisted state
//   - Host: Verification, digest policy and archive compression
//   - Trust: Capability scoping for unverified applications
//   - Bridge: Command timeout and handler concurrency
//   - Update: Update feed location and retry budget
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("Serving apps from %s on %s:%s\n", cfg.Store.Root, cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, WEBAPP_ROOT, WEBAPP_VERIFY, WEBAPP_DIGEST_POLICY
//   - WEBAPP_TRUST_POLICY, WEBAPP_TRUST_ALLOW, WEBAPP_COMPRESSION
//   - BRIDGE_TIMEOUT, BRIDGE_MAX_CONCURRENT
//   - UPDATE_FEED_URL, UPDATE_FEED_DIR, UPDATE_TIMEOUT, UPDATE_RETRIES
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
