package weights

import (
	"context"

	getter "github.com/hashicorp/go-getter"
)

// GetterFetcher downloads with go-getter, so sources may be plain http(s) URLs or forced
// getters such as s3:: and gcs::.
type GetterFetcher struct{}

func (GetterFetcher) Fetch(ctx context.Context, src, dst string) error {
	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: getter.ClientModeFile,
	}
	return client.Get()
}
