package node

import (
	"context"

	"github.com/gin-gonic/gin"
)

// Node is a process that exposes an HTTP surface.
type Node interface {
	NodeID() string
	Kind() string
	HTTPRouter() *gin.Engine
	// Serve blocks until ctx ends, then shuts the listener down.
	Serve(ctx context.Context) error
}
