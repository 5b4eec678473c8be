package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/liunix61/uptane-server/internal/domain"
)

// Reconciler finishes namespace sagas that a request abandoned. A namespace
// stuck in pending_create is rolled back; one stuck in pending_delete is
// purged again. Grace keeps it away from sagas that are still running.
type Reconciler struct {
	Namespaces NamespaceRepository
	Lifecycle  *NamespaceLifecycleManager
	Grace      time.Duration
	Clock      Clock
}

type SweepResult struct {
	RolledBack int
	Purged     int
	Failed     int
}

func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if r.Namespaces == nil || r.Lifecycle == nil {
		return result, errors.New("reconciler is not configured")
	}
	now := time.Now()
	if r.Clock != nil {
		now = r.Clock()
	}
	cutoff := now.UTC().Add(-r.Grace)
	logger := log.Ctx(ctx)

	var errs []error
	creating, err := r.Namespaces.ListStale(ctx, domain.NamespaceStatusPendingCreate, cutoff)
	if err != nil {
		return result, fmt.Errorf("list pending_create: %w", err)
	}
	for _, ns := range creating {
		if err := r.Namespaces.SetStatus(ctx, ns.ID, domain.NamespaceStatusPendingDelete); err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", ns.ID, err))
			continue
		}
		if err := r.Lifecycle.purge(ctx, ns.ID); err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", ns.ID, err))
			logger.Warn().Err(err).Str("namespace_id", ns.ID).Msg("rollback of pending namespace failed")
			continue
		}
		result.RolledBack++
		logger.Info().Str("namespace_id", ns.ID).Msg("rolled back incomplete namespace")
	}

	deleting, err := r.Namespaces.ListStale(ctx, domain.NamespaceStatusPendingDelete, cutoff)
	if err != nil {
		return result, errors.Join(append(errs, fmt.Errorf("list pending_delete: %w", err))...)
	}
	for _, ns := range deleting {
		if err := r.Lifecycle.purge(ctx, ns.ID); err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", ns.ID, err))
			logger.Warn().Err(err).Str("namespace_id", ns.ID).Msg("retry of namespace delete failed")
			continue
		}
		result.Purged++
		logger.Info().Str("namespace_id", ns.ID).Msg("finished namespace delete")
	}
	return result, errors.Join(errs...)
}
