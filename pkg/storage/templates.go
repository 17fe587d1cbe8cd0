package storage

import (
	"context"

	"github.com/papercomputeco/presence/pkg/activity"
)

// EnsureTemplate returns the active version for kind, storing seed as
// version 1 when the kind has no versions yet.
func EnsureTemplate(ctx context.Context, ts TemplateStore, kind activity.TemplateKind, seed string) (activity.TemplateVersion, error) {
	tv, err := ts.ActiveTemplate(ctx, kind)
	if err == nil {
		return tv, nil
	}
	if !IsNotFound(err) {
		return activity.TemplateVersion{}, err
	}
	return ts.AddTemplate(ctx, kind, seed)
}
