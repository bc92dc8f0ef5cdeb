package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/GriffinCanCode/localwebapp/internal/shared/id"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

var (
	// ErrCapabilityNotFound marks a command whose handler is not registered
	ErrCapabilityNotFound = errors.New("capability not found")

	// ErrCapabilityDenied marks a capability withheld by the trust policy
	ErrCapabilityDenied = errors.New("capability denied")

	// ErrInvalidCommand marks a malformed cmd field
	ErrInvalidCommand = errors.New("invalid command")
)

// CapabilityNotFoundError names the capability or handler id that failed to resolve
type CapabilityNotFoundError struct {
	Capability string
	HandlerID  string
}

func (e *CapabilityNotFoundError) Error() string {
	if e.HandlerID != "" {
		return fmt.Sprintf("no handler with id %s", e.HandlerID)
	}
	return fmt.Sprintf("capability not found: %s", e.Capability)
}

// Unwrap returns ErrCapabilityNotFound
func (e *CapabilityNotFoundError) Unwrap() error { return ErrCapabilityNotFound }

// CapabilityDeniedError is returned when an unverified app reaches outside its allow list
type CapabilityDeniedError struct {
	Capability string
	AppID      string
}

func (e *CapabilityDeniedError) Error() string {
	return fmt.Sprintf("capability %s is not available to unverified app %s", e.Capability, e.AppID)
}

// Unwrap returns ErrCapabilityDenied
func (e *CapabilityDeniedError) Unwrap() error { return ErrCapabilityDenied }

// Handler is a native capability reachable from hosted content
type Handler interface {
	Definition() types.Capability
	Execute(ctx context.Context, cmd string, data interface{}, appCtx *types.AppContext) (interface{}, error)
}

// Registry maps capability names and stable handler ids to handlers
type Registry struct {
	handlers sync.Map // name -> Handler
	ids      sync.Map // id.HandlerID -> name
	policy   TrustPolicy
}

// Option configures a Registry
type Option func(*Registry)

// WithTrustPolicy sets the policy applied to unverified apps
func WithTrustPolicy(p TrustPolicy) Option {
	return func(r *Registry) {
		r.policy = p
	}
}

// NewRegistry creates an empty registry with the full trust policy
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{policy: FullTrust()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the trust policy in effect
func (r *Registry) Policy() TrustPolicy {
	return r.policy
}

// Register adds a handler under its capability name
func (r *Registry) Register(h Handler) error {
	def := h.Definition()
	if def.Name == "" {
		return fmt.Errorf("capability name cannot be empty")
	}
	if strings.Contains(def.Name, ".") {
		return fmt.Errorf("capability name %q cannot contain '.'", def.Name)
	}
	if _, loaded := r.handlers.LoadOrStore(def.Name, h); loaded {
		return fmt.Errorf("capability %s already registered", def.Name)
	}
	r.ids.Store(id.StableHandlerID(def.Name), def.Name)
	return nil
}

// MustRegister registers every handler and panics on the first failure
func (r *Registry) MustRegister(handlers ...Handler) {
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
}

// Unregister removes a handler
func (r *Registry) Unregister(name string) {
	r.handlers.Delete(name)
	r.ids.Delete(id.StableHandlerID(name))
}

// Get retrieves a handler by capability name
func (r *Registry) Get(name string) (Handler, bool) {
	val, ok := r.handlers.Load(name)
	if !ok {
		return nil, false
	}
	return val.(Handler), true
}

// GetByID retrieves a handler by its stable id
func (r *Registry) GetByID(handlerID id.HandlerID) (Handler, bool) {
	name, ok := r.ids.Load(handlerID)
	if !ok {
		return nil, false
	}
	return r.Get(name.(string))
}

// List returns every capability sorted by name, with ids filled in
func (r *Registry) List() []types.Capability {
	var caps []types.Capability
	r.handlers.Range(func(key, value interface{}) bool {
		def := value.(Handler).Definition()
		def.ID = id.StableHandlerID(key.(string)).String()
		caps = append(caps, def)
		return true
	})
	sort.Slice(caps, func(i, j int) bool { return caps[i].Name < caps[j].Name })
	return caps
}

// Resolve finds the handler for a request and the command name relative to it
func (r *Registry) Resolve(req *types.Request) (Handler, string, error) {
	if req.HandlerID != "" {
		h, ok := r.GetByID(id.HandlerID(req.HandlerID))
		if !ok {
			return nil, "", &CapabilityNotFoundError{HandlerID: req.HandlerID}
		}
		return h, strings.TrimPrefix(req.Cmd, h.Definition().Name+"."), nil
	}

	capability, command, ok := strings.Cut(req.Cmd, ".")
	if !ok || capability == "" || command == "" {
		return nil, "", fmt.Errorf("%w: %q must have the form capability.command", ErrInvalidCommand, req.Cmd)
	}
	h, found := r.Get(capability)
	if !found {
		return nil, "", &CapabilityNotFoundError{Capability: capability}
	}
	return h, command, nil
}

// Execute resolves and runs one request under the trust policy
func (r *Registry) Execute(ctx context.Context, req *types.Request, appCtx *types.AppContext) (interface{}, error) {
	h, command, err := r.Resolve(req)
	if err != nil {
		return nil, err
	}

	name := h.Definition().Name
	if !r.policy.Allows(name, appCtx) {
		appID := ""
		if appCtx != nil {
			appID = appCtx.AppID
		}
		return nil, &CapabilityDeniedError{Capability: name, AppID: appID}
	}

	return h.Execute(ctx, command, req.Data, appCtx)
}

// Stats returns registry statistics
func (r *Registry) Stats() map[string]interface{} {
	var total, commands int
	r.handlers.Range(func(_, value interface{}) bool {
		total++
		commands += len(value.(Handler).Definition().Commands)
		return true
	})

	return map[string]interface{}{
		"total_capabilities": total,
		"total_commands":     commands,
		"trust_policy":       string(r.policy.Mode),
	}
}
