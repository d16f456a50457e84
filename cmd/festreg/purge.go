// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/vtufest/festreg/pkg/errutil"
)

// tokenPurger removes consumed and expired reset tokens.
type tokenPurger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// purgeObserver records purge results.
type purgeObserver interface {
	TokensPurged(n int64)
}

// runPurgeLoop purges once immediately and then every interval until ctx is
// cancelled. observer may be nil.
func runPurgeLoop(ctx context.Context, purger tokenPurger, interval, retention time.Duration, observer purgeObserver, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		purgeOnce(ctx, purger, retention, observer, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func purgeOnce(ctx context.Context, purger tokenPurger, retention time.Duration, observer purgeObserver, logger *slog.Logger) {
	n, err := purger.Purge(ctx, retention)
	if err != nil {
		if ctx.Err() == nil {
			errutil.LogError(ctx, logger, "reset token purge failed", err)
		}
		return
	}
	if observer != nil {
		observer.TokensPurged(n)
	}
	if n > 0 {
		logger.InfoContext(ctx, "purged reset tokens", "count", n, "retention", retention)
	}
}
