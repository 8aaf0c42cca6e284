package app

import (
	"context"
	"fmt"
	"time"

	"booking_feed/internal/domain"
)

// CachedDirectory fronts the location directory and integration store with a
// short-lived cache so each poll tick does not hit the directory database.
type CachedDirectory struct {
	dir   domain.LocationDirectory
	integ domain.IntegrationStore
	cache domain.Cache
	ttl   time.Duration
}

func NewCachedDirectory(d domain.LocationDirectory, i domain.IntegrationStore, c domain.Cache, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{dir: d, integ: i, cache: c, ttl: ttl}
}

// cachedIntegration holds only what gates polling. Credentials are always
// read from the integration store and never written to the cache.
type cachedIntegration struct {
	Found    bool
	IsActive bool
}

func (c *CachedDirectory) ListLocations(ctx context.Context) ([]domain.Location, error) {
	const key = "directory:locations"
	var out []domain.Location
	if ok, _ := c.cache.Get(ctx, key, &out); ok {
		return out, nil
	}
	out, err := c.dir.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(ctx, key, out, int(c.ttl.Seconds()))
	return out, nil
}

func (c *CachedDirectory) GetIntegration(ctx context.Context, locationID int64) (domain.Integration, bool, error) {
	key := fmt.Sprintf("directory:integration:%d", locationID)
	var ci cachedIntegration
	if ok, _ := c.cache.Get(ctx, key, &ci); ok {
		if !ci.Found {
			return domain.Integration{}, false, nil
		}
		if !ci.IsActive {
			return domain.Integration{LocationID: locationID}, true, nil
		}
	}
	in, found, err := c.integ.GetIntegration(ctx, locationID)
	if err != nil {
		return domain.Integration{}, false, err
	}
	_ = c.cache.Set(ctx, key, cachedIntegration{Found: found, IsActive: in.IsActive}, int(c.ttl.Seconds()))
	return in, found, nil
}

// Invalidate drops cached entries for a location, or everything when id is nil.
func (c *CachedDirectory) Invalidate(ctx context.Context, locationID *int64) {
	_ = c.cache.Del(ctx, "directory:locations")
	if locationID != nil {
		_ = c.cache.Del(ctx, fmt.Sprintf("directory:integration:%d", *locationID))
	}
}
