package domain

import "time"

type CartItem struct {
	ProductID   string  `json:"productId"`
	VariantID   string  `json:"variantId,omitempty"`
	VendorID    string  `json:"vendorId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

type Cart struct {
	ID     string     `json:"id"`
	UserID string     `json:"userId"`
	Items  []CartItem `json:"items"`
}

type CartValidation struct {
	Valid  bool     `json:"valid"`
	Cart   *Cart    `json:"cart"`
	Issues []string `json:"issues"`
}

type StockItem struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity"`
}

type StockCheckResult struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	InStock   bool   `json:"inStock"`
}

type StockCheck struct {
	AllAvailable bool               `json:"allAvailable"`
	Results      []StockCheckResult `json:"results"`
}

// StockReservation is the opaque handle the stock collaborator returns.
type StockReservation struct {
	ID string `json:"reservationId"`
}

type Address struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type PaymentMethod struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"expMonth"`
	ExpYear  int    `json:"expYear"`
}

// Expired reports whether the card's expiry month has fully passed at now.
func (m PaymentMethod) Expired(now time.Time) bool {
	if m.ExpYear == 0 {
		return false
	}
	expiry := time.Date(m.ExpYear, time.Month(m.ExpMonth)+1, 1, 0, 0, 0, 0, time.UTC)
	return !now.Before(expiry)
}

func StockItemsFromCart(items []CartItem) []StockItem {
	out := make([]StockItem, 0, len(items))
	for _, item := range items {
		out = append(out, StockItem{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity})
	}
	return out
}
