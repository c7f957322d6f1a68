package lifecycle

import (
	"testing"

	"github.com/orderflow/storefront/internal/models"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from models.OrderState
		to   models.OrderState
		want bool
	}{
		{"pending to awaiting payment", models.StatePending, models.StateAwaitingPayment, true},
		{"awaiting payment to paid", models.StateAwaitingPayment, models.StatePaid, true},
		{"awaiting payment to failed", models.StateAwaitingPayment, models.StateFailed, true},
		{"paid to processing", models.StatePaid, models.StateProcessing, true},
		{"paid to cancelled", models.StatePaid, models.StateCancelled, true},
		{"processing to shipped", models.StateProcessing, models.StateShipped, true},
		{"shipped to delivered", models.StateShipped, models.StateDelivered, true},
		{"shipped to cancelled", models.StateShipped, models.StateCancelled, true},
		{"delivered to completed", models.StateDelivered, models.StateCompleted, true},
		{"delivered to refunded", models.StateDelivered, models.StateRefunded, true},
		{"partial refund accumulates", models.StatePartiallyRefunded, models.StatePartiallyRefunded, true},
		{"partial refund to full", models.StatePartiallyRefunded, models.StateRefunded, true},

		{"pending to paid skips payment", models.StatePending, models.StatePaid, false},
		{"awaiting payment to cancelled", models.StateAwaitingPayment, models.StateCancelled, false},
		{"delivered to cancelled", models.StateDelivered, models.StateCancelled, false},
		{"shipped backwards to processing", models.StateShipped, models.StateProcessing, false},
		{"completed to anything", models.StateCompleted, models.StateRefunded, false},
		{"cancelled to paid", models.StateCancelled, models.StatePaid, false},
		{"failed to awaiting payment", models.StateFailed, models.StateAwaitingPayment, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

// The graph must be closed: every reachable target is itself a known
// state with an entry in the table, and terminal states have no
// outgoing edges.
func TestTransitionGraphClosure(t *testing.T) {
	t.Parallel()

	graph := Transitions()

	for from, targets := range graph {
		if from.IsTerminal() && len(targets) > 0 {
			t.Errorf("terminal state %s has outgoing transitions %v", from, targets)
		}

		for _, to := range targets {
			if _, ok := graph[to]; !ok {
				t.Errorf("transition %s -> %s leads outside the graph", from, to)
			}
		}
	}

	for _, state := range []models.OrderState{
		models.StatePending, models.StateAwaitingPayment, models.StatePaid,
		models.StateProcessing, models.StateShipped, models.StateDelivered,
		models.StateCompleted, models.StateCancelled, models.StateRefunded,
		models.StatePartiallyRefunded, models.StateFailed,
	} {
		if _, ok := graph[state]; !ok {
			t.Errorf("state %s missing from the transition table", state)
		}
	}
}
