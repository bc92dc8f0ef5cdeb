// Package paths provides standardized filesystem paths.
//
// This package defines the canonical directory structure for persisted
// application state. All store and handler code should use these helpers so
// that every component agrees on where an application lives.
//
// # Directory Structure
//
//	<root>/
//	  └── LocalWebApp/
//	      └── <appId>/
//	          ├── content/   (unpacked package content)
//	          ├── data/      (handler-written application data)
//	          └── .staging/  (in-progress unpacks, never loaded)
//
// # Usage
//
//	import "github.com/GriffinCanCode/localwebapp/internal/shared/paths"
//
//	layout := paths.NewLayout(root)
//	app := layout.App("com.example.notes")
//	dataDir := app.DataDir() // <root>/LocalWebApp/com.example.notes/data
//
//	// Validate ids before building paths
//	if err := paths.ValidateAppID(id); err != nil {
//	    return err
//	}
package paths
