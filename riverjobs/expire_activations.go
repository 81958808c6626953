package riverjobs

import (
	"context"
	"errors"
	"time"

	"github.com/riverqueue/river"

	"github.com/otpbuy/otpbuy/core"
)

type ExpireActivationsArgs struct {
	BatchSize int `json:"batch_size,omitempty"`
}

func (ExpireActivationsArgs) Kind() string { return "otpbuy_expire_activations" }

func (args ExpireActivationsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue: river.QueueDefault,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: time.Minute,
			ByQueue:  true,
		},
	}
}

// ExpireActivationsWorker auto-cancels rented numbers past the activation
// window and refunds their wallets. It is the server-side backstop for
// clients that went away without cancelling.
type ExpireActivationsWorker struct {
	river.WorkerDefaults[ExpireActivationsArgs]
	svc *core.Service
}

func NewExpireActivationsWorker(svc *core.Service) *ExpireActivationsWorker {
	return &ExpireActivationsWorker{svc: svc}
}

func (w *ExpireActivationsWorker) Timeout(*river.Job[ExpireActivationsArgs]) time.Duration {
	return 5 * time.Minute
}

func (w *ExpireActivationsWorker) Work(ctx context.Context, job *river.Job[ExpireActivationsArgs]) error {
	if w == nil || w.svc == nil {
		return errors.New("otpbuy expire activations: service not configured")
	}
	batch := job.Args.BatchSize
	if batch <= 0 {
		batch = 200
	}
	_, err := w.svc.AutoCancelExpired(ctx, batch)
	return err
}
