package watermark

import (
	"fmt"
	"image"
	"os"

	gocache "github.com/patrickmn/go-cache"

	"relaymirror/internal/constants"
)

// OverlayCache keeps decoded overlay assets in memory so repeated
// transforms for the same destination do not re-read and re-decode the
// file. Entries expire so asset updates on disk are picked up eventually.
type OverlayCache struct {
	cache *gocache.Cache
}

func NewOverlayCache() *OverlayCache {
	return &OverlayCache{
		cache: gocache.New(constants.OverlayCacheExpiration, constants.OverlayCacheCleanupTick),
	}
}

// Get returns the decoded overlay image for path, loading it on a miss.
func (c *OverlayCache) Get(path string) (image.Image, error) {
	if cached, ok := c.cache.Get(path); ok {
		return cached.(image.Image), nil
	}

	img, err := loadOverlay(path)
	if err != nil {
		return nil, err
	}

	c.cache.Set(path, img, gocache.DefaultExpiration)
	return img, nil
}

func loadOverlay(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open overlay asset %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode overlay asset %s: %w", path, err)
	}
	return img, nil
}
