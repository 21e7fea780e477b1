package kv

import (
	"context"
	"errors"

	"github.com/g1mliii/anchored/internal/common"
)

// BustCacheVersion rolls the static-asset cache version marker. Only
// KeyCacheVersion is ever written or removed: note data, the sync queue, and
// session keys must survive a version roll byte-identical.
func BustCacheVersion(ctx context.Context, s Store, version string) (changed bool, err error) {
	current, err := s.Get(ctx, KeyCacheVersion)
	switch {
	case err == nil:
		if string(current) == version {
			return false, nil
		}
		if err := s.Delete(ctx, KeyCacheVersion); err != nil {
			return false, err
		}
	case !errors.Is(err, common.ErrNotFound):
		return false, err
	}

	if err := s.Set(ctx, KeyCacheVersion, []byte(version)); err != nil {
		return false, err
	}
	return true, nil
}
