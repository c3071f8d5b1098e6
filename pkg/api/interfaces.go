// Package api provides interfaces for dependency injection
package api

import (
	"context"

	"github.com/ssargent/visionfs/pkg/layout"
	"github.com/ssargent/visionfs/pkg/vision"
)

// FileProvider is the part of the file system the API serves
type FileProvider interface {
	// Definitions returns every registered layout
	Definitions() []*layout.FileDefinition

	// Definition returns the layout registered for a file name
	Definition(name string) (*layout.FileDefinition, error)

	// GetFile returns a closed session on a file
	GetFile(name string) (*vision.File, error)
}

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// StartServer serves until ctx is cancelled
	StartServer(ctx context.Context, files FileProvider, config ServerConfig) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServerStarter creates a server starter
	CreateServerStarter() ServerStarter
}
