package ctf

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// redeemDelay throttles individual on-chain calls so a burst of resolved
// markets does not flood the RPC endpoint.
const redeemDelay = 5 * time.Second

// RedeemablePosition is a resolved conditional-token position eligible for
// on-chain redemption. It is produced by the arbitrage collaborator or by a
// periodic positions scan; the quoting core never constructs one directly.
type RedeemablePosition struct {
	ConditionID  string
	OutcomeIndex int // 0 or 1
	Title        string
}

// AutoRedeemer periodically walks a caller-supplied set of resolved
// positions and redeems them via CTFClient. It runs entirely outside the
// quoting core's event loop, matching the concurrency model's carve-out for
// "background RPC for blockchain redemption/merge".
type AutoRedeemer struct {
	client *CTFClient
	log    *logrus.Entry

	mu               sync.Mutex
	submittedRedeems map[string]time.Time
	totalRedeemed    int
	lastRedeemTime   time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewAutoRedeemer(client *CTFClient, log *logrus.Entry) *AutoRedeemer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &AutoRedeemer{
		client:           client,
		log:              log.WithField("component", "auto_redeemer"),
		submittedRedeems: make(map[string]time.Time),
		stopCh:           make(chan struct{}),
	}
}

// Source supplies the set of currently redeemable positions; it is owned by
// the arbitrage collaborator or a periodic REST positions scan, never by the
// quoting core.
type Source func(ctx context.Context) ([]RedeemablePosition, error)

func (r *AutoRedeemer) Run(ctx context.Context, interval time.Duration, source Source) {
	r.wg.Add(1)
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.checkAndRedeem(ctx, source)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.checkAndRedeem(ctx, source)
		}
	}
}

func (r *AutoRedeemer) Stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	r.wg.Wait()
}

func (r *AutoRedeemer) Stats() (redeemed int, lastTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalRedeemed, r.lastRedeemTime
}

func (r *AutoRedeemer) checkAndRedeem(ctx context.Context, source Source) {
	r.mu.Lock()
	cutoff := time.Now().Add(-10 * time.Minute)
	for key, at := range r.submittedRedeems {
		if at.Before(cutoff) {
			delete(r.submittedRedeems, key)
		}
	}
	r.mu.Unlock()

	positions, err := source(ctx)
	if err != nil {
		r.log.WithError(err).Warn("failed to list redeemable positions")
		return
	}
	if len(positions) == 0 {
		return
	}

	for i, pos := range positions {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(redeemDelay):
			}
		}

		key := pos.ConditionID + "-" + big.NewInt(int64(pos.OutcomeIndex)).String()
		r.mu.Lock()
		_, already := r.submittedRedeems[key]
		r.mu.Unlock()
		if already {
			continue
		}

		if err := r.redeemOne(ctx, pos); err != nil {
			r.log.WithError(errors.WithStack(err)).WithField("condition_id", pos.ConditionID).Warn("redeem failed")
			continue
		}

		r.mu.Lock()
		r.submittedRedeems[key] = time.Now()
		r.totalRedeemed++
		r.lastRedeemTime = time.Now()
		r.mu.Unlock()
	}
}

func (r *AutoRedeemer) redeemOne(ctx context.Context, pos RedeemablePosition) error {
	indexSets := []*big.Int{big.NewInt(1)}
	if pos.OutcomeIndex == 1 {
		indexSets = []*big.Int{big.NewInt(2)}
	}
	tx, err := r.client.RedeemPositions(ctx, RedeemPositionsParams{
		ConditionID: pos.ConditionID,
		IndexSets:   indexSets,
	})
	if err != nil {
		return errors.Wrap(err, "build redeem transaction")
	}
	txHash, err := r.client.SendTransaction(ctx, tx)
	if err != nil {
		return errors.Wrap(err, "send redeem transaction")
	}
	r.log.WithFields(logrus.Fields{
		"condition_id": pos.ConditionID,
		"title":        pos.Title,
		"tx_hash":      txHash.Hex(),
	}).Info("redemption submitted")
	return nil
}
