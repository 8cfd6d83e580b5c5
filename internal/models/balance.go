package models

// Balance is derived, never persisted.
// AvailableQuantity = TotalQuantity - ConsumedQuantity - HeldQuantity.
type Balance struct {
	StudentID         string `json:"student_id"`
	ServiceType       string `json:"service_type"`
	TotalQuantity     int    `json:"total_quantity"`
	ConsumedQuantity  int    `json:"consumed_quantity"`
	HeldQuantity      int    `json:"held_quantity"`
	AvailableQuantity int    `json:"available_quantity"`
}

// Pagination describes list metadata in responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
