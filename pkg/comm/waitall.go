package comm

import (
	"context"

	"golang.org/x/sync/errgroup"
)

func errgroupWithContext(ctx context.Context) (*errgroup.Group, context.Context) {
	return errgroup.WithContext(ctx)
}
