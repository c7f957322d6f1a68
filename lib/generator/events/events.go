// Package eventGen генерирует случайные, но структурно-валидные
// webhook-события платежного шлюза и агрегатора доставки. Это основной
// инструмент сервиса `event-generator`, который эмулирует поток
// реальных событий для локальных и нагрузочных запусков.
// Для создания фейковых данных используется библиотека `gofakeit`.
package eventGen

import (
	"encoding/json"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/orderflow/storefront/internal/events"
	"github.com/orderflow/storefront/internal/gateway"
	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/shipping"
)

var (
	paymentTypes = []string{
		gateway.EventChargeCompleted,
		gateway.EventChargeFailed,
		gateway.EventRefundCompleted,
		gateway.EventRefundFailed,
	}
	trackingStatuses = []shipping.TrackingStatus{
		shipping.TrackingPreTransit,
		shipping.TrackingInTransit,
		shipping.TrackingOutForDelivery,
		shipping.TrackingDelivered,
		shipping.TrackingReturned,
	}
)

// GenerateEnvelope создает конверт со случайным событием: примерно
// в 60% случаев - событие шлюза, иначе - трекинг-событие агрегатора.
// Возвращает JSON-представление конверта.
func GenerateEnvelope() []byte {
	if gofakeit.Number(1, 10) <= 6 {
		return marshalEnvelope(models.SourcePayment, generatePaymentEvent())
	}

	return marshalEnvelope(models.SourceShipping, generateTrackingEvent())
}

func generatePaymentEvent() gateway.WebhookEvent {
	return gateway.WebhookEvent{
		ExternalID:  gofakeit.UUID(),
		Type:        gofakeit.RandomString(paymentTypes),
		OrderUID:    gofakeit.UUID(),
		TxnRef:      gofakeit.UUID(),
		RefundRef:   gofakeit.UUID(),
		AmountCents: int64(gofakeit.Number(500, 250000)),
		Currency:    "USD",
	}
}

func generateTrackingEvent() shipping.TrackingEvent {
	status := trackingStatuses[gofakeit.Number(0, len(trackingStatuses)-1)]

	return shipping.TrackingEvent{
		ExternalID:  gofakeit.UUID(),
		ShipmentRef: gofakeit.UUID(),
		Status:      status,
	}
}

func marshalEnvelope(source models.WebhookEventSource, event any) []byte {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		fmt.Println("Error marshaling to JSON:", err)
		return nil
	}

	jsonData, err := json.Marshal(events.Envelope{
		Source: source,
		Event:  eventJSON,
	})
	if err != nil {
		fmt.Println("Error marshaling to JSON:", err)
		return nil
	}

	return jsonData
}
