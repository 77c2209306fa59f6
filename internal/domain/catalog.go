package domain

import "encoding/json"

// Product is a cached product snapshot used for offline browsing.
// The cache is not authoritative and is replaced wholesale on refresh.
type Product struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Price   float64         `json:"price"`
	Barcode string          `json:"barcode,omitempty"`
	UOM     string          `json:"uom,omitempty"`
	Attrs   json.RawMessage `json:"attrs,omitempty"`
}

// CartItem is one line of the single active cart.
type CartItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Qty       float64         `json:"qty"`
	Rate      float64         `json:"rate"`
	Attrs     json.RawMessage `json:"attrs,omitempty"`
}
