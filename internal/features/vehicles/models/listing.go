package models

import "time"

// SellerType classifies who posted a listing.
type SellerType string

const (
	SellerPrivate SellerType = "private"
	SellerDealer  SellerType = "dealer"
)

// Listing is one vehicle classified ad, rebuilt from the feed on every
// cycle. Only the token identifies it; everything else is display data.
type Listing struct {
	Token        string     `json:"token"`
	Seller       SellerType `json:"seller"`
	Manufacturer string     `json:"manufacturer"`
	Model        string     `json:"model"`
	SubModel     string     `json:"sub_model"`
	Price        int        `json:"price"`
	Year         int        `json:"year"`
	Mileage      int        `json:"km"`
	Hand         string     `json:"hand"`
	Area         string     `json:"area"`
	URL          string     `json:"link"`
	ImageURL     string     `json:"img,omitempty"`
}

// IsPrivate reports whether the listing was posted by a private seller.
func (l Listing) IsPrivate() bool {
	return l.Seller == SellerPrivate
}

// FoundListing is a Listing as persisted in the found-listings store.
// Dismissed entries stay in the store for dedup but are hidden from the UI.
type FoundListing struct {
	Listing
	FoundAt   time.Time `json:"found_at"`
	Dismissed bool      `json:"dismissed,omitempty"`
}

// FeedPage is the result of extracting one raw page body.
type FeedPage struct {
	Listings   []Listing
	TotalPages int
}
