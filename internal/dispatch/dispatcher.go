package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"mt5-signal-bot/config"
	"mt5-signal-bot/internal/dedup"
	"mt5-signal-bot/internal/engine"
	"mt5-signal-bot/internal/events"
	"mt5-signal-bot/internal/gateway"
	"mt5-signal-bot/internal/ledger"
	"mt5-signal-bot/internal/outbox"
	"mt5-signal-bot/internal/review"
	"mt5-signal-bot/internal/rules"
	"mt5-signal-bot/internal/venue"
)

// Dispatcher consumes gateway events on a single goroutine. All per-
// message reasoning is synchronous and deterministic; only venue calls
// leave the loop, through the worker pool.
type Dispatcher struct {
	catalog  *rules.Holder
	deduper  dedup.Deduper
	builder  *engine.Builder
	executor *Executor
	calc     *engine.Calculator
	provider *venue.Provider
	repo     ledger.Repository
	sink     outbox.Sink
	reviews  review.Repository
	pool     *Pool
	bus      *events.EventBus
	cfg      config.EngineConfig

	whitelist map[int64]bool
	log       zerolog.Logger
}

// Deps bundles the dispatcher's collaborators.
type Deps struct {
	Catalog   *rules.Holder
	Deduper   dedup.Deduper
	Executor  *Executor
	Calc      *engine.Calculator
	Provider  *venue.Provider
	Repo      ledger.Repository
	Sink      outbox.Sink
	Reviews   review.Repository
	Pool      *Pool
	Bus       *events.EventBus
	Engine    config.EngineConfig
	Whitelist []int64
	Logger    zerolog.Logger
}

func NewDispatcher(deps Deps) *Dispatcher {
	d := &Dispatcher{
		catalog:  deps.Catalog,
		deduper:  deps.Deduper,
		executor: deps.Executor,
		calc:     deps.Calc,
		provider: deps.Provider,
		repo:     deps.Repo,
		sink:     deps.Sink,
		reviews:  deps.Reviews,
		pool:     deps.Pool,
		bus:      deps.Bus,
		cfg:      deps.Engine,
		log:      deps.Logger,
	}
	if len(deps.Whitelist) > 0 {
		d.whitelist = make(map[int64]bool, len(deps.Whitelist))
		for _, id := range deps.Whitelist {
			d.whitelist[id] = true
		}
	}
	d.builder = engine.NewBuilder(deps.Repo, deps.Engine, &riskFreeScheduler{d: d}, deps.Logger)
	return d
}

// Run pumps the stream until the context is cancelled or the stream
// channel closes.
func (d *Dispatcher) Run(ctx context.Context, stream gateway.Stream) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			d.Handle(ctx, ev)
		}
	}
}

// Handle processes one message event end to end.
func (d *Dispatcher) Handle(ctx context.Context, ev gateway.MessageEvent) {
	if d.whitelist != nil && !d.whitelist[ev.ChatID] {
		return
	}

	text := rules.Clean(ev.Text)

	first, err := d.deduper.FirstSeen(ctx, ev.ChatID, ev.MsgID, ev.Edited, text)
	if err != nil {
		d.log.Error().Err(err).Int64("msg", ev.MsgID).Msg("Dedup check failed")
	}
	if !first {
		d.log.Debug().Int64("msg", ev.MsgID).Bool("edited", ev.Edited).Msg("Duplicate event dropped")
		return
	}

	if len(text) < d.cfg.MinTextLen {
		return
	}

	catalog := d.catalog.Get()
	if phrase, ignored := catalog.ShouldIgnore(text); ignored {
		d.log.Debug().Int64("msg", ev.MsgID).Str("phrase", phrase).Msg("Message ignored")
		d.bus.Publish(events.Event{Type: events.EventMessageIgnored, Data: map[string]interface{}{
			"msg_id": ev.MsgID, "phrase": phrase,
		}})
		return
	}

	res := catalog.MatchMessage(text)
	if res.Ambiguous {
		d.queueReview(ctx, ev, review.ReasonAmbiguous, "conflicting rules: "+strings.Join(res.Contenders, ", "))
		return
	}
	if res.Match == nil {
		if d.cfg.FailsafeOnUnparsed {
			d.queueReview(ctx, ev, review.ReasonNoMatch, "no rule matched")
		}
		return
	}

	slots, err := catalog.Extract(res.Match)
	if err != nil {
		var slotErr *rules.SlotValidationError
		if errors.As(err, &slotErr) {
			d.queueReview(ctx, ev, review.ReasonSlotInvalid, slotErr.Error())
			return
		}
		d.queueReview(ctx, ev, review.ReasonSlotInvalid, err.Error())
		return
	}

	result := d.builder.Build(ctx, engine.Inbound{
		ChatID:       ev.ChatID,
		MsgID:        ev.MsgID,
		ReplyToMsgID: ev.ReplyToMsgID,
		Text:         text,
		Edited:       ev.Edited,
	}, res.Match, slots)

	if result.Rejection != nil {
		d.queueReview(ctx, ev, result.Rejection.Reason, result.Rejection.Detail)
		return
	}

	for _, action := range result.Actions {
		d.emit(ctx, action)
	}
}

// emit records the action in the outbox and, when it is new, hands its
// execution to the worker pool.
func (d *Dispatcher) emit(ctx context.Context, action engine.Action) {
	fresh, err := d.sink.Emit(ctx, action)
	if err != nil {
		d.log.Error().Err(err).Str("action", action.ID).Msg("Outbox emit failed")
		return
	}
	if !fresh {
		d.log.Info().Str("action", action.ID).Msg("Duplicate action suppressed")
		return
	}

	d.bus.PublishActionEmitted(action.ID, string(action.Type), action.GroupKey, len(action.Legs))

	submitted := d.pool.Submit(func(taskCtx context.Context) {
		if err := d.executor.Execute(taskCtx, action); err != nil {
			d.log.Error().Err(err).Str("action", action.ID).Msg("Action execution failed")
			d.bus.PublishError("executor", err.Error())
			return
		}
		d.bus.Publish(events.Event{Type: events.EventActionExecuted, Data: map[string]interface{}{
			"action_id": action.ID, "type": string(action.Type),
		}})
	})
	if !submitted {
		d.log.Error().Str("action", action.ID).Msg("Worker pool saturated, action not executed")
		d.bus.PublishError("pool", "worker pool saturated")
	}
}

func (d *Dispatcher) queueReview(ctx context.Context, ev gateway.MessageEvent, reason review.Reason, detail string) {
	item := review.NewItem(ev.ChatID, ev.MsgID, reason, detail, ev.Text)
	if err := d.reviews.Add(ctx, item); err != nil {
		d.log.Error().Err(err).Str("reason", string(reason)).Msg("Failed to queue review item")
	}
	d.log.Warn().
		Int64("msg", ev.MsgID).
		Str("reason", string(reason)).
		Str("detail", detail).
		Msg("Message sent to review queue")
	d.bus.PublishReviewQueued(string(reason), ev.ChatID, ev.MsgID)
}

// riskFreeScheduler runs risk-free passes on the worker pool.
type riskFreeScheduler struct {
	d *Dispatcher
}

func (s *riskFreeScheduler) Schedule(groupKey string, sourceMsgID int64) bool {
	d := s.d
	return d.pool.Submit(func(ctx context.Context) {
		client, err := d.provider.Get(ctx)
		if err != nil {
			d.log.Error().Err(err).Str("group", groupKey).Msg("Venue unavailable for risk-free pass")
			d.bus.PublishError("riskfree", err.Error())
			return
		}
		group, err := d.repo.Get(ctx, groupKey)
		if err != nil {
			d.log.Error().Err(err).Str("group", groupKey).Msg("Group vanished before risk-free pass")
			return
		}

		report, err := d.calc.Apply(ctx, client, group)
		if err != nil {
			if errors.Is(err, engine.ErrMixedSides) {
				item := review.NewItem(group.ChatID, sourceMsgID, review.ReasonMixedSides, err.Error(), "")
				if addErr := d.reviews.Add(ctx, item); addErr != nil {
					d.log.Error().Err(addErr).Msg("Failed to queue review item")
				}
			}
			d.log.Error().Err(err).Str("group", groupKey).Msg("Risk-free pass failed")
			return
		}
		d.bus.PublishRiskFreeApplied(groupKey, report.NewStop, len(report.Cancelled), len(report.Modified))
	})
}
