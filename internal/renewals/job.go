package renewals

import (
	"context"

	"go.uber.org/multierr"

	"github.com/CyberITEX/cms-commerce/pkg/enums"
	pkgerrors "github.com/CyberITEX/cms-commerce/pkg/errors"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
	"github.com/CyberITEX/cms-commerce/pkg/metrics"
)

const defaultBatchSize = 50

// Job is the scheduler driver: each run it materializes renewal orders for
// due subscriptions, then charges the due renewals through the gateway.
type Job struct {
	svc     Service
	charger Charger
	metrics *metrics.RenewalMetrics
	logg    *logger.Logger
	batch   int
}

// JobParams configure the renewal job.
type JobParams struct {
	Service   Service
	Charger   Charger
	Metrics   *metrics.RenewalMetrics
	Logger    *logger.Logger
	BatchSize int
}

// NewJob validates dependencies and builds the renewal job.
func NewJob(params JobParams) (*Job, error) {
	if params.Service == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "renewal service required")
	}
	if params.Charger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "charger required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Job{
		svc:     params.Service,
		charger: params.Charger,
		metrics: params.Metrics,
		logg:    params.Logger,
		batch:   batch,
	}, nil
}

// Name implements cron.Job.
func (j *Job) Name() string { return "subscription-renewals" }

// Run executes one renewal cycle. Individual failures are collected so one
// bad subscription never blocks the rest of the batch.
func (j *Job) Run(ctx context.Context) error {
	var errs error

	if err := j.materialize(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := j.settle(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

func (j *Job) materialize(ctx context.Context) error {
	subs, err := j.svc.ListDueSubscriptions(ctx, j.batch)
	if err != nil {
		return err
	}

	var errs error
	for i := range subs {
		sub := &subs[i]
		subCtx := j.logg.WithSubscriptionID(ctx, sub.ID.String())

		pending, err := j.svc.HasPendingRenewal(ctx, sub.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if pending {
			continue
		}

		renewal, err := j.svc.CreateRenewalOrder(ctx, sub.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			j.logg.Error(subCtx, "renewal order creation failed", err)
			continue
		}
		j.logg.Info(j.logg.WithField(subCtx, "renewal_order_number", renewal.RenewalOrderNumber), "renewal order created")
	}
	return errs
}

func (j *Job) settle(ctx context.Context) error {
	page, err := j.svc.ListDue(ctx, j.batch, 0)
	if err != nil {
		return err
	}

	var errs error
	for i := range page.Items {
		renewal := page.Items[i]
		renewalCtx := j.logg.WithField(ctx, "renewal_order_number", renewal.RenewalOrderNumber)

		result, err := j.charger.Charge(ctx, &renewal)
		if err != nil {
			errs = multierr.Append(errs, err)
			j.logg.Error(renewalCtx, "gateway unreachable", err)
			if attErr := j.svc.IncrementAttempt(ctx, renewal.ID); attErr != nil {
				errs = multierr.Append(errs, attErr)
			}
			j.observe("errored")
			continue
		}

		processed, err := j.svc.ProcessRenewal(ctx, renewal.ID, result)
		if err != nil {
			errs = multierr.Append(errs, err)
			j.logg.Error(renewalCtx, "renewal processing failed", err)
			j.observe("errored")
			continue
		}

		if processed.Renewal.Status == enums.RenewalStatusCompleted {
			j.observe("completed")
			j.logg.Info(renewalCtx, "renewal completed")
			continue
		}

		j.observe("failed")
		j.logg.Warn(renewalCtx, "renewal charge declined")
		if attErr := j.svc.IncrementAttempt(ctx, renewal.ID); attErr != nil {
			errs = multierr.Append(errs, attErr)
		}
	}
	return errs
}

func (j *Job) observe(outcome string) {
	if j.metrics == nil {
		return
	}
	j.metrics.IncProcessed(outcome)
}
