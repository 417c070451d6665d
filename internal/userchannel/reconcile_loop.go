package userchannel

import (
	"context"
	"time"

	"github.com/betbot/aquoter/internal/obslog"
)

// RunReconcileLoop periodically reconciles the local open-order map
// against the REST snapshot (default interval per spec §4.2 is 60s),
// exiting when ctx is cancelled. TriggerCh lets callers force an
// immediate out-of-band reconciliation (reconnect, sequence gap).
func (m *Manager) RunReconcileLoop(ctx context.Context, triggerCh <-chan struct{}) {
	log := obslog.Component("userchannel.reconcile")
	ticker := time.NewTicker(m.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Reconcile(); err != nil {
				log.Warnf("periodic reconcile failed: %v", err)
			}
		case <-triggerCh:
			if _, err := m.Reconcile(); err != nil {
				log.Warnf("forced reconcile failed: %v", err)
			}
		}
	}
}
