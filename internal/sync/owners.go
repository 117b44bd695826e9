package sync

import (
	"context"

	"carelink/internal/domain"
)

// OwnerResolver turns an endpoint's location binding into the owner id new
// cases are created under. An empty owner id means the location has no valid
// owner, which is a configuration fault on the creation path.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, ep domain.Endpoint) (string, error)
}

// StaticOwnerResolver resolves owners from a fixed location-to-owner table,
// typically loaded from the endpoint configuration file.
type StaticOwnerResolver struct {
	owners map[string]string
}

func NewStaticOwnerResolver(ownersByLocation map[string]string) *StaticOwnerResolver {
	return &StaticOwnerResolver{owners: ownersByLocation}
}

func (r *StaticOwnerResolver) ResolveOwner(_ context.Context, ep domain.Endpoint) (string, error) {
	return r.owners[ep.LocationID], nil
}
