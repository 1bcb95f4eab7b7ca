package auth

import (
	"context"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a context carrying the resolved identity.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the identity attached by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*models.Principal)
	return p, ok && p != nil
}

// SystemPrincipal acts for devices such as odometer telemetry.
func SystemPrincipal(name string) *models.Principal {
	return &models.Principal{UserID: name, System: true}
}
