package models

import "time"

// ShipmentRecord tracks the label purchased for an order and the last
// tracking status seen for it, either from carrier webhooks or from the
// periodic tracking poller.
type ShipmentRecord struct {
	ID             string    `json:"id" db:"id"`
	OrderUID       string    `json:"order_uid" db:"order_uid"`
	ShipmentRef    string    `json:"shipment_ref" db:"shipment_ref"`
	LabelRef       string    `json:"label_ref" db:"label_ref"`
	Carrier        string    `json:"carrier" db:"carrier"`
	ServiceLevel   string    `json:"service_level" db:"service_level"`
	TrackingNumber string    `json:"tracking_number" db:"tracking_number"`
	TrackingStatus string    `json:"tracking_status" db:"tracking_status"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
