package models

import (
	"time"

	"github.com/uptrace/bun"
)

// PricePaid is one HM Land Registry Price Paid transaction.
type PricePaid struct {
	bun.BaseModel `bun:"table:price_paid_data,alias:pp"`

	TransactionID  string    `bun:"transaction_id,pk,type:varchar"`
	Price          int64     `bun:"price,type:integer"`
	DateOfTransfer time.Time `bun:"date_of_transfer,type:date"`
	Postcode       string    `bun:"postcode,nullzero"`
	PropertyType   string    `bun:"property_type,nullzero"`
	NewBuildFlag   string    `bun:"new_build_flag,nullzero"`
	TenureType     string    `bun:"tenure_type,nullzero"`
	PAON           string    `bun:"paon,nullzero"`
	SAON           string    `bun:"saon,nullzero"`
	Street         string    `bun:"street,nullzero"`
	Locality       string    `bun:"locality,nullzero"`
	TownCity       string    `bun:"town_city,nullzero"`
	District       string    `bun:"district,nullzero"`
	County         string    `bun:"county,nullzero"`
	Location       *Point    `bun:"location,type:geography(Point,4326)"`
}

// SoldPriceRow is a PricePaid row as read back by the radius query, with the
// geography column unpacked into coordinates.
type SoldPriceRow struct {
	TransactionID  string    `bun:"transaction_id"`
	Price          int64     `bun:"price"`
	DateOfTransfer time.Time `bun:"date_of_transfer"`
	Postcode       string    `bun:"postcode"`
	PropertyType   string    `bun:"property_type"`
	NewBuildFlag   string    `bun:"new_build_flag"`
	TenureType     string    `bun:"tenure_type"`
	PAON           string    `bun:"paon"`
	SAON           string    `bun:"saon"`
	Street         string    `bun:"street"`
	Locality       string    `bun:"locality"`
	TownCity       string    `bun:"town_city"`
	District       string    `bun:"district"`
	County         string    `bun:"county"`
	Latitude       float64   `bun:"latitude"`
	Longitude      float64   `bun:"longitude"`
}

// SoldPriceQueryParams filters the radius search.
type SoldPriceQueryParams struct {
	Postcode   string
	RadiusKm   float64
	StreetName string
}
