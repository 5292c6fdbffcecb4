package models

import (
	"fmt"
)

// OrderStatus is the lifecycle status of an order
type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// DeliveryStatus tracks forwarding of an order to the delivery partner.
// It is independent of OrderStatus: a failed dispatch never un-completes an order.
type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "PENDING"
	DeliveryStatusDispatched DeliveryStatus = "DISPATCHED"
	DeliveryStatusFailed     DeliveryStatus = "DISPATCH_FAILED"
	DeliveryStatusBlocked    DeliveryStatus = "DISPATCH_BLOCKED"
)

// Order represents the STOREFRONT_ORDER table
type Order struct {
	OrderID        string         `db:"ORDER_ID" json:"orderId"`
	UserID         string         `db:"USER_ID" json:"userId"`
	SubjectID      string         `db:"SUBJECT_ID" json:"subjectId"`
	TenantID       string         `db:"TENANT_ID" json:"tenantId"`
	TotalAmount    int64          `db:"TOTAL_AMOUNT" json:"totalAmount"`
	Status         OrderStatus    `db:"STATUS" json:"status"`
	DeliveryStatus DeliveryStatus `db:"DELIVERY_STATUS" json:"deliveryStatus"`
	DeliveryMemo   *string        `db:"DELIVERY_MEMO" json:"deliveryMemo,omitempty"`
	// Only persisted when credential retention is enabled
	StoredCredential *string     `db:"DELEGATED_CREDENTIAL" json:"-"`
	CreatedTime      int64       `db:"CREATED_TIME" json:"createdTime"`
	UpdatedTime      int64       `db:"UPDATED_TIME" json:"updatedTime"`
	Items            []OrderItem `db:"-" json:"items"`

	// Attached after delegation verification, before dispatch
	DelegatedCredential *DelegatedCredential `db:"-" json:"-"`
}

// OrderItem represents the STOREFRONT_ORDER_ITEM table
type OrderItem struct {
	OrderID   string `db:"ORDER_ID" json:"-"`
	LineNo    int    `db:"LINE_NO" json:"-"`
	ProductID string `db:"PRODUCT_ID" json:"productId"`
	Title     string `db:"TITLE" json:"title"`
	Quantity  int    `db:"QUANTITY" json:"quantity"`
	Price     int64  `db:"PRICE" json:"price"`
}

// CalculateTotal sums price * quantity across items
func CalculateTotal(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.Price * int64(item.Quantity)
	}
	return total
}

// SubmitOrderRequest is the checkout order submission payload
type SubmitOrderRequest struct {
	SubjectID    string      `json:"subjectId"`
	TenantID     string      `json:"tenantId"`
	Items        []OrderItem `json:"items" binding:"required"`
	DeliveryMemo string      `json:"deliveryMemo"`
}

// Validate checks the order lines
func (r *SubmitOrderRequest) Validate() error {
	if len(r.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	for i, item := range r.Items {
		if item.Title == "" {
			return fmt.Errorf("item %d: title is required", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d: quantity must be positive", i)
		}
		if item.Price < 0 {
			return fmt.Errorf("item %d: price must not be negative", i)
		}
	}
	return nil
}

// CartItem represents the STOREFRONT_CART_ITEM table
type CartItem struct {
	UserID    string `db:"USER_ID" json:"userId"`
	ProductID string `db:"PRODUCT_ID" json:"productId"`
	Quantity  int    `db:"QUANTITY" json:"quantity"`
}

// CheckoutAudit represents the CHECKOUT_AUDIT table, one row per state transition
type CheckoutAudit struct {
	AuditID       string  `db:"AUDIT_ID" json:"auditId"`
	AttemptID     string  `db:"ATTEMPT_ID" json:"attemptId"`
	UserID        string  `db:"USER_ID" json:"userId"`
	OrderID       *string `db:"ORDER_ID" json:"orderId,omitempty"`
	PreviousState string  `db:"PREVIOUS_STATE" json:"previousState"`
	CurrentState  string  `db:"CURRENT_STATE" json:"currentState"`
	Reason        *string `db:"REASON" json:"reason,omitempty"`
	ActionTime    int64   `db:"ACTION_TIME" json:"actionTime"`
}
