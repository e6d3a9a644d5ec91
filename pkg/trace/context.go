// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package trace

import "context"

type ctxKey struct{}

// NewContext returns a context carrying the collector. Passing nil is
// allowed and yields a context whose FromContext returns nil.
func NewContext(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the collector bound to ctx, or nil when tracing
// is not active. The nil collector no-ops, so the result can be used
// without checking.
func FromContext(ctx context.Context) *Collector {
	c, _ := ctx.Value(ctxKey{}).(*Collector)
	return c
}
