package types

import (
	"time"

	"github.com/GriffinCanCode/localwebapp/internal/shared/id"
)

// Request is one command sent from hosted content to a capability handler
type Request struct {
	Trace     id.TraceID             `json:"trace"`
	Cmd       string                 `json:"cmd"`
	HandlerID string                 `json:"handlerId,omitempty"`
	Data      interface{}            `json:"data,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Info      map[string]interface{} `json:"info,omitempty"`
}

// Timeline marks dispatch, handler-start and handler-completion
type Timeline struct {
	Requested  time.Time `json:"requested"`
	Processing time.Time `json:"processing"`
	Processed  time.Time `json:"processed"`
}

// Response answers exactly one Request, matched by Trace
type Response struct {
	Trace    id.TraceID             `json:"trace"`
	Cmd      string                 `json:"cmd"`
	Handler  *string                `json:"handler"`
	Data     interface{}            `json:"data"`
	Info     map[string]interface{} `json:"info,omitempty"`
	Message  *string                `json:"message"`
	Error    bool                   `json:"error"`
	Context  map[string]interface{} `json:"context,omitempty"`
	Timeline Timeline               `json:"timeline"`
}

// Capability describes one registered handler
type Capability struct {
	Name        string    `json:"name"`
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Commands    []Command `json:"commands"`
}

// Command describes one command a capability accepts
type Command struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Returns     string      `json:"returns"`
}

// Parameter describes one command parameter
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// AppContext provides execution context for capability handlers
type AppContext struct {
	AppID         string    `json:"app_id"`
	DataDirectory string    `json:"data_directory"`
	Verified      bool      `json:"verified"`
	Manifest      *Manifest `json:"manifest,omitempty"`
}
