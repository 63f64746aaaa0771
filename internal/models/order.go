package models

import "time"

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPreparing OrderStatus = "preparing"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// OrderSnapshot is the cached view of an order.
type OrderSnapshot struct {
	OrderID       int         `db:"id" json:"orderId"`
	UserID        int         `db:"user_id" json:"userId"`
	Status        OrderStatus `db:"status" json:"status"`
	PaymentStatus string      `db:"payment_status" json:"paymentStatus"`
	TotalAmount   float64     `db:"total_amount" json:"totalAmount"`
	Notes         string      `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updatedAt"`
}

// OrderStatusEvent is the lightweight delta pushed on orderStatusUpdated.
type OrderStatusEvent struct {
	OrderID       int         `db:"order_id" json:"orderId"`
	Status        OrderStatus `db:"status" json:"status"`
	PaymentStatus *string     `db:"payment_status" json:"paymentStatus,omitempty"`
	Notes         *string     `db:"notes" json:"notes,omitempty"`
	Timestamp     time.Time   `db:"created_at" json:"timestamp"`
}
