package riverjobs

import (
	"context"
	"errors"
	"time"

	"github.com/riverqueue/river"

	"github.com/otpbuy/otpbuy/core"
)

type ExpireOrdersArgs struct{}

func (ExpireOrdersArgs) Kind() string { return "otpbuy_expire_orders" }

func (args ExpireOrdersArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue: river.QueueDefault,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: time.Minute,
			ByQueue:  true,
		},
	}
}

// ExpireOrdersWorker times out pending payment orders whose verification
// window lapsed. The in-process payment poller applies the same cutoff; this
// sweep catches orders whose poller died with the process.
type ExpireOrdersWorker struct {
	river.WorkerDefaults[ExpireOrdersArgs]
	svc *core.Service
}

func NewExpireOrdersWorker(svc *core.Service) *ExpireOrdersWorker {
	return &ExpireOrdersWorker{svc: svc}
}

func (w *ExpireOrdersWorker) Timeout(*river.Job[ExpireOrdersArgs]) time.Duration {
	return time.Minute
}

func (w *ExpireOrdersWorker) Work(ctx context.Context, job *river.Job[ExpireOrdersArgs]) error {
	if w == nil || w.svc == nil {
		return errors.New("otpbuy expire orders: service not configured")
	}
	_, err := w.svc.ExpireStaleOrders(ctx)
	return err
}
