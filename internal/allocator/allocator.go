// Package allocator produces display identifiers for new domain records:
// canonical sequential ones when the remote is reachable, provisional
// random ones when it is not.
package allocator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openchw/fieldsync/pkg/types"
)

// Counter is the one remote call the allocator makes: the row count of a
// remote table.
type Counter interface {
	Count(ctx context.Context, table string) (int, error)
}

// Allocator assigns display identifiers, parameterized by table prefix so
// one implementation serves every record type.
type Allocator struct {
	counter Counter
	logger  *slog.Logger
}

// New creates an Allocator backed by the given remote counter.
func New(counter Counter, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		counter: counter,
		logger:  logger.With(slog.String("component", "allocator")),
	}
}

// Allocate returns a display identifier for a new record in table. When
// online it asks the remote for the table's row count and returns the next
// canonical identifier; if offline, or if the count call fails, it falls
// back to a provisional identifier. The fallback never touches the
// network, so allocation itself cannot fail.
func (a *Allocator) Allocate(ctx context.Context, table string, online bool) (string, error) {
	prefix, ok := types.DisplayPrefixes[table]
	if !ok {
		return "", fmt.Errorf("%w: %s", types.ErrTableUnknown, table)
	}

	if online {
		count, err := a.counter.Count(ctx, table)
		if err == nil {
			return Canonical(prefix, count+1), nil
		}
		a.logger.Warn("count query failed, using provisional identifier",
			slog.String("table", table), slog.Any("error", err))
	}
	return Provisional(), nil
}

// Canonical formats a canonical display identifier: prefix, dash, and the
// sequence number zero-padded to three digits. Sequences past 999 keep
// their full width.
func Canonical(prefix string, sequence int) string {
	return fmt.Sprintf("%s-%03d", prefix, sequence)
}

// Provisional returns a locally unique provisional identifier. The random
// 128-bit token makes collisions between concurrently offline devices
// negligible without any coordination; canonical numbering is settled at
// reconciliation time.
func Provisional() string {
	return types.ProvisionalPrefix + uuid.NewString()
}
