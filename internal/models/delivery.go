package models

// DeliveryRequest is the payload sent to the delivery partner intake endpoint.
// It carries no customer personal data; the partner resolves the address with
// the delegated credential.
type DeliveryRequest struct {
	OrderNumber         string                `json:"orderNumber"`
	MerchantName        string                `json:"merchantName"`
	RequestDate         string                `json:"requestDate"`
	TotalAmount         int64                 `json:"totalAmount"`
	Items               []DeliveryRequestItem `json:"items"`
	DeliveryMemo        string                `json:"deliveryMemo"`
	DelegatedCredential string                `json:"delegatedCredential"`
}

// DeliveryRequestItem is an order line reduced to what the partner needs
type DeliveryRequestItem struct {
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}
