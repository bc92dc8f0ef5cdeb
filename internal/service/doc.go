// Package service provides the handler registry that routes bridge commands
// to native capabilities.
//
// Components:
//   - Registry: capability name and stable handler id to Handler
//   - Handler: interface implemented by every capability provider
//   - TrustPolicy: which capabilities unverified apps may reach
//
// Resolution:
//   - A request carrying handlerId is routed by id
//   - Otherwise the prefix of cmd names the capability ("files.read" -> files)
//   - Unknown capabilities yield *CapabilityNotFoundError
//
// Example Usage:
//
//	registry := service.NewRegistry(service.WithTrustPolicy(service.Restricted()))
//	registry.MustRegister(files.New(), crypto.New())
//	data, err := registry.Execute(ctx, req, appCtx)
package service
