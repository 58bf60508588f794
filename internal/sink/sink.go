package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"feedsnap/internal/domain"
)

// Sink persists or publishes a finished snapshot.
type Sink interface {
	Name() string
	Write(ctx context.Context, snap *domain.Snapshot) error
}

// Multi writes to every sink in order. A failing sink does not stop the
// remaining ones; all failures are returned joined.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Write(ctx context.Context, snap *domain.Snapshot) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, snap); err != nil {
			log.Error("Snapshot sink failed", "sink", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
			continue
		}
		log.Debug("Snapshot written", "sink", s.Name())
	}
	return errors.Join(errs...)
}
