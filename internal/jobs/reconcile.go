// Package jobs holds scheduled maintenance tasks of the service.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"allot.org/internal/alloc"
	"allot.org/internal/obs"
)

const reconcileTimeout = 5 * time.Minute

// Reconciler recomputes derived unit statuses for every tenant. It repairs
// drift introduced outside the engine; it never touches assignments.
type Reconciler struct {
	svc alloc.Service
}

func NewReconciler(svc alloc.Service) *Reconciler {
	return &Reconciler{svc: svc}
}

// Run performs one pass and returns how many units were corrected.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	tenants, err := r.svc.TenantIDs(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, tenantID := range tenants {
		fixed, err := r.svc.ReconcileUnits(ctx, tenantID)
		total += len(fixed)
		if err != nil {
			obs.Logger().WithError(err).WithField("tenant_id", tenantID).Error("reconcile tenant failed")
			continue
		}
		for _, u := range fixed {
			obs.Logger().WithFields(map[string]any{
				"tenant_id": tenantID,
				"unit_id":   u.ID,
				"status":    string(u.Status),
			}).Warn("unit status drift corrected")
		}
	}
	return total, nil
}

// Schedule registers the reconciler on a UTC cron. An empty spec schedules
// nothing and returns a nil cron.
func Schedule(spec string, r *Reconciler) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()
		obs.Logger().Info("Starting unit reconcile cron job...")
		n, err := r.Run(ctx)
		if err != nil {
			obs.Logger().WithError(err).Error("Failed to reconcile unit statuses")
			return
		}
		obs.Logger().WithField("corrected", n).Info("Unit reconcile finished")
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
