package riverjobs

import (
	"fmt"

	"github.com/riverqueue/river"
	"github.com/robfig/cron/v3"

	"github.com/otpbuy/otpbuy/core"
)

// RegisterWorkers registers all OTPBUY workers into a River workers registry.
func RegisterWorkers(ws *river.Workers, svc *core.Service) {
	river.AddWorker(ws, NewExpireActivationsWorker(svc))
	river.AddWorker(ws, NewExpireOrdersWorker(svc))
}

// AddExpireActivationsPeriodicJob enqueues the activation sweep on a cron
// schedule. Example cron: "* * * * *" (every minute).
func AddExpireActivationsPeriodicJob[T any](client *river.Client[T], cronSpec string, args ExpireActivationsArgs, runOnStart bool) error {
	return addPeriodic(client, cronSpec, args, args.InsertOpts(), runOnStart)
}

// AddExpireOrdersPeriodicJob enqueues the payment-order sweep on a cron schedule.
func AddExpireOrdersPeriodicJob[T any](client *river.Client[T], cronSpec string, args ExpireOrdersArgs, runOnStart bool) error {
	return addPeriodic(client, cronSpec, args, args.InsertOpts(), runOnStart)
}

func addPeriodic[T any](client *river.Client[T], cronSpec string, args river.JobArgs, opts river.InsertOpts, runOnStart bool) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronSpec)
	if err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", cronSpec, err)
	}
	_ = client.PeriodicJobs().Add(
		river.NewPeriodicJob(
			schedule,
			func() (river.JobArgs, *river.InsertOpts) { return args, &opts },
			&river.PeriodicJobOpts{RunOnStart: runOnStart},
		),
	)
	return nil
}
