package lifecycle

import (
	"fmt"

	"github.com/orderflow/storefront/internal/models"
)

// transitions is the full order state graph. Any transition not listed
// here is rejected, including transitions requested by webhook events
// that arrive out of order.
var transitions = map[models.OrderState][]models.OrderState{
	models.StatePending:         {models.StateAwaitingPayment},
	models.StateAwaitingPayment: {models.StatePaid, models.StateFailed},
	models.StatePaid: {
		models.StateProcessing,
		models.StateCancelled,
		models.StateRefunded,
		models.StatePartiallyRefunded,
	},
	models.StateProcessing: {
		models.StateShipped,
		models.StateCancelled,
		models.StateRefunded,
		models.StatePartiallyRefunded,
	},
	models.StateShipped: {
		models.StateDelivered,
		models.StateCancelled,
		models.StateRefunded,
		models.StatePartiallyRefunded,
	},
	models.StateDelivered: {
		models.StateCompleted,
		models.StateRefunded,
		models.StatePartiallyRefunded,
	},
	// A partially refunded order can take further refunds until the
	// captured amount is exhausted.
	models.StatePartiallyRefunded: {
		models.StateRefunded,
		models.StatePartiallyRefunded,
	},
	models.StateCompleted: {},
	models.StateCancelled: {},
	models.StateRefunded:  {},
	models.StateFailed:    {},
}

// CanTransition reports whether the state graph defines from -> to.
func CanTransition(from, to models.OrderState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transitions returns a copy of the state graph, for tests and
// introspection.
func Transitions() map[models.OrderState][]models.OrderState {
	out := make(map[models.OrderState][]models.OrderState, len(transitions))
	for from, tos := range transitions {
		out[from] = append([]models.OrderState(nil), tos...)
	}
	return out
}

// InvalidOrderStateError is returned when a requested transition is not
// reachable from the order's current state. It names the blocking state
// so callers can surface a structured reason.
type InvalidOrderStateError struct {
	OrderUID  string
	Current   models.OrderState
	Requested models.OrderState
}

func (e *InvalidOrderStateError) Error() string {
	return fmt.Sprintf("order %s: transition to %s not allowed from %s",
		e.OrderUID, e.Requested, e.Current)
}
