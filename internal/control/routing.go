package control

import (
	"context"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/indexing/aggregate"
	"github.com/cenetex/cosyworld-sub000/internal/notify"
	"github.com/cenetex/cosyworld-sub000/internal/reaction"
)

// Emit implements scheduler.Sink. Swaps and transfers go to their own queues,
// once per subscription; participants of every event are handed to the
// reaction batcher once per destination.
func (e *Engine) Emit(ctx context.Context, subs []*domain.TrackedToken, info *domain.TokenInfo, events []*domain.TransactionEvent) {
	if len(subs) == 0 {
		return
	}
	for _, ev := range events {
		e.react(ctx, subs[0].DestinationID, ev)

		queue := e.swaps
		if ev.Type == domain.EventTypeTransfer {
			queue = e.transfers
		}
		for _, sub := range subs {
			select {
			case queue <- swapJob{sub: sub, info: info, event: ev}:
			case <-ctx.Done():
				e.log.Warn("Dropping events of stopped poll loop",
					"destination", sub.DestinationID,
					"token", sub.TokenAddress,
					"signature", ev.Signature,
				)
				return
			}
		}
	}
}

// NotifyDeactivated implements scheduler.Notifier.
func (e *Engine) NotifyDeactivated(ctx context.Context, sub *domain.TrackedToken, message string) {
	out := e.dispatcher.Dispatch(ctx, notify.Notification{
		Kind:         notify.KindDeactivation,
		Subscription: sub,
		Text:         message,
	})
	if out.Status != notify.StatusPosted {
		e.log.Warn("Deactivation notice not delivered",
			"destination", sub.DestinationID,
			"token", sub.TokenAddress,
			"status", out.Status,
			"reason", out.Reason,
		)
	}
}

func (e *Engine) react(ctx context.Context, destination string, ev *domain.TransactionEvent) {
	if e.registry == nil {
		return
	}
	for _, party := range reaction.Parties(ev) {
		p, ok := e.registry.Resolve(ctx, party.Wallet)
		if !ok {
			continue
		}
		e.batcher.Add(destination, p, party.Role, ev)
	}
}

func (e *Engine) consumeSwaps(ctx context.Context) {
	for job := range e.swaps {
		e.dispatcher.Dispatch(ctx, notify.Notification{
			Kind:         notify.KindSwap,
			Subscription: job.sub,
			Event:        job.event,
			Info:         job.info,
		})
	}
}

// consumeTransfers runs transfers through the aggregator. It owns the summary
// queue and closes it on exit.
func (e *Engine) consumeTransfers(ctx context.Context) {
	defer close(e.summaries)

	for job := range e.transfers {
		threshold := job.sub.Preferences.AggregationThresholdUSD
		if threshold <= 0 {
			threshold = e.cfg.Aggregation.DefaultThresholdUSD
		}

		outcome, summary := e.aggregator.Handle(e.now(), job.sub, job.event, threshold)
		switch outcome {
		case aggregate.Continue:
			e.dispatcher.Dispatch(ctx, notify.Notification{
				Kind:         notify.KindTransfer,
				Subscription: job.sub,
				Event:        job.event,
				Info:         job.info,
			})
		case aggregate.Handled:
			e.summaries <- summaryJob{sub: job.sub, info: job.info, summary: summary}
		case aggregate.Suppress:
		}
	}
}

func (e *Engine) consumeSummaries(ctx context.Context) {
	for job := range e.summaries {
		e.dispatcher.Dispatch(ctx, notify.Notification{
			Kind:         notify.KindSummary,
			Subscription: job.sub,
			Summary:      job.summary,
			Info:         job.info,
		})
	}
}
