package dispatch

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"mt5-signal-bot/internal/circuit"
	"mt5-signal-bot/internal/engine"
	"mt5-signal-bot/internal/ledger"
	"mt5-signal-bot/internal/venue"
)

// ErrAllLegsFailed is returned when the venue rejected every leg of an
// action.
var ErrAllLegsFailed = errors.New("venue rejected every leg")

// ErrBreakerOpen is returned when the venue circuit breaker refuses the
// call.
var ErrBreakerOpen = errors.New("venue circuit breaker open")

// Executor applies actions to the venue and records the resulting
// tickets and status transitions in the ledger. Legs fail independently:
// one rejection never aborts the remaining legs of an action.
type Executor struct {
	provider *venue.Provider
	repo     ledger.Repository
	breaker  *circuit.Breaker
	log      zerolog.Logger
}

func NewExecutor(provider *venue.Provider, repo ledger.Repository, logger zerolog.Logger) *Executor {
	return &Executor{
		provider: provider,
		repo:     repo,
		breaker:  circuit.NewBreaker(nil),
		log:      logger,
	}
}

// Breaker exposes the venue circuit breaker for diagnostics
func (e *Executor) Breaker() *circuit.Breaker {
	return e.breaker
}

// Execute applies one action.
func (e *Executor) Execute(ctx context.Context, action engine.Action) error {
	if ok, reason := e.breaker.Allow(); !ok {
		e.log.Warn().Str("action", action.ID).Str("reason", reason).Msg("Action refused by circuit breaker")
		return ErrBreakerOpen
	}

	client, err := e.provider.Get(ctx)
	if err != nil {
		e.breaker.RecordFailure(err)
		return err
	}

	var done int
	switch action.Type {
	case engine.ActionOpen:
		done = e.placeLegs(ctx, client, action)
	case engine.ActionModify:
		done = e.modifyLegs(ctx, client, action)
	case engine.ActionCancel:
		done = e.cancelLegs(ctx, client, action)
	case engine.ActionClosePartial, engine.ActionCloseAll:
		done = e.closeLegs(ctx, client, action)
	default:
		e.log.Error().Str("type", string(action.Type)).Msg("Unknown action type")
		return ErrAllLegsFailed
	}

	e.log.Info().
		Str("action", action.ID).
		Str("type", string(action.Type)).
		Str("group", action.GroupKey).
		Int("legs_done", done).
		Int("legs_total", len(action.Legs)).
		Msg("Action executed")

	if done == 0 && len(action.Legs) > 0 {
		e.breaker.RecordFailure(ErrAllLegsFailed)
		return ErrAllLegsFailed
	}
	e.breaker.RecordSuccess()

	if action.Type == engine.ActionCloseAll {
		e.finishGroup(ctx, action.GroupKey)
	}
	return nil
}

func (e *Executor) placeLegs(ctx context.Context, client venue.Client, action engine.Action) int {
	done := 0
	for _, leg := range action.Legs {
		ticket, err := client.PlaceOrder(ctx, venue.OrderRequest{
			Symbol:     leg.Symbol,
			Side:       leg.Side,
			Volume:     leg.Volume,
			Price:      leg.Entry,
			StopLoss:   leg.StopLoss,
			TakeProfit: leg.TakeProfit,
			Comment:    leg.Comment,
		})
		if err != nil {
			e.log.Error().Err(err).Int("leg", leg.LegIndex).Str("action", action.ID).Msg("Order placement failed")
			continue
		}
		done++
		if err := e.repo.SetLegTicket(ctx, action.GroupKey, leg.LegIndex, ticket); err != nil {
			e.log.Warn().Err(err).Int("leg", leg.LegIndex).Msg("Ledger ticket update failed")
		}
	}
	return done
}

func (e *Executor) modifyLegs(ctx context.Context, client venue.Client, action engine.Action) int {
	pending := e.pendingTickets(ctx, action.GroupKey)
	done := 0
	for _, leg := range action.Legs {
		if leg.Ticket == 0 {
			continue
		}
		var err error
		if pending[leg.Ticket] {
			err = client.ModifyOrder(ctx, leg.Ticket, leg.StopLoss, leg.TakeProfit)
		} else {
			err = client.ModifyPosition(ctx, leg.Ticket, leg.StopLoss, leg.TakeProfit)
		}
		if err != nil {
			e.log.Error().Err(err).Int64("ticket", leg.Ticket).Str("action", action.ID).Msg("Modify failed")
			continue
		}
		done++
	}
	return done
}

func (e *Executor) cancelLegs(ctx context.Context, client venue.Client, action engine.Action) int {
	done := 0
	for _, leg := range action.Legs {
		if leg.Ticket == 0 {
			continue
		}
		if err := client.CancelOrder(ctx, leg.Ticket); err != nil {
			e.log.Error().Err(err).Int64("ticket", leg.Ticket).Str("action", action.ID).Msg("Cancel failed")
			continue
		}
		done++
		if err := e.repo.SetLegStatus(ctx, action.GroupKey, leg.LegIndex, ledger.LegCancelled); err != nil {
			e.log.Warn().Err(err).Int("leg", leg.LegIndex).Msg("Ledger cancel update failed")
		}
	}
	return done
}

func (e *Executor) closeLegs(ctx context.Context, client venue.Client, action engine.Action) int {
	done := 0
	full := action.Type == engine.ActionCloseAll
	for _, leg := range action.Legs {
		if leg.Ticket == 0 {
			continue
		}
		if err := client.ClosePosition(ctx, leg.Ticket, leg.Volume); err != nil {
			e.log.Error().Err(err).Int64("ticket", leg.Ticket).Str("action", action.ID).Msg("Close failed")
			continue
		}
		done++
		if full {
			if err := e.repo.SetLegStatus(ctx, action.GroupKey, leg.LegIndex, ledger.LegClosed); err != nil {
				e.log.Warn().Err(err).Int("leg", leg.LegIndex).Msg("Ledger close update failed")
			}
		}
	}
	return done
}

// pendingTickets maps the group's pending tickets so modifies pick the
// right venue call.
func (e *Executor) pendingTickets(ctx context.Context, groupKey string) map[int64]bool {
	out := make(map[int64]bool)
	group, err := e.repo.Get(ctx, groupKey)
	if err != nil {
		return out
	}
	for _, leg := range group.PendingLegs() {
		if leg.Ticket != 0 {
			out[leg.Ticket] = true
		}
	}
	return out
}

// finishGroup marks the group closed once nothing is active anymore.
func (e *Executor) finishGroup(ctx context.Context, groupKey string) {
	group, err := e.repo.Get(ctx, groupKey)
	if err != nil {
		return
	}
	if len(group.ActiveLegs()) == 0 {
		if err := e.repo.MarkClosed(ctx, groupKey); err != nil {
			e.log.Warn().Err(err).Str("group", groupKey).Msg("Failed to mark group closed")
		}
	}
}
