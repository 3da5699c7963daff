package handler

import (
	"context"

	"github.com/voyaai/voyaai/internal/api/middleware"
)

// GetSubject retrieves the authenticated editor from the context.
// This is a convenience wrapper around middleware.GetSubject.
func GetSubject(ctx context.Context) string {
	return middleware.GetSubject(ctx)
}
