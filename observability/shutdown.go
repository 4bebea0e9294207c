package observability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultShutdownTimeout bounds Shutdown when ctx has no deadline.
const DefaultShutdownTimeout = 10 * time.Second

// Shutdown exports everything recorded since the last reader interval and
// then stops provider. The stop runs even if the flush fails; both errors are
// joined. A nil provider is a no-op.
func Shutdown(ctx context.Context, provider Provider) error {
	if provider == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if err := provider.ForceFlush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush telemetry: %w", err))
	}
	if err := provider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop telemetry: %w", err))
	}
	return errors.Join(errs...)
}
