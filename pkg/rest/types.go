// Package rest holds the request and response bodies of the storefront API
// shared by the server and the cart sync client.
package rest

// CartLine is a cart line as sent by a client. Prices are never accepted
// from clients.
type CartLine struct {
	VariantID int64             `json:"variantId" validate:"gt=0"`
	Quantity  int               `json:"quantity" validate:"gt=0"`
	PriceType string            `json:"priceType,omitempty" validate:"omitempty,oneof=retail promo ctv"`
	ExtraInfo map[string]string `json:"extraInfo,omitempty"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type SyncCartRequest struct {
	Items []CartLine `json:"items" validate:"dive"`
}

type QuoteRequest struct {
	Discount int64 `json:"discount" validate:"gte=0"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type WarmCacheResponse struct {
	Warmed int `json:"warmed"`
}

type InvalidateResponse struct {
	ProductID   int64 `json:"productId"`
	Invalidated bool  `json:"invalidated"`
}

type RefreshResponse struct {
	Refreshed bool `json:"refreshed"`
}
