package models

import "strings"

// DateLayout is the calendar-date form used for every date in API responses.
const DateLayout = "2006-01-02"

// PropertySoldPrice is a single sold property price record returned by the API.
type PropertySoldPrice struct {
	TransactionID  string  `json:"transaction_id"`
	Price          int64   `json:"price"`
	DateOfTransfer string  `json:"date_of_transfer"`
	Postcode       string  `json:"postcode"`
	PropertyType   string  `json:"property_type"`
	NewBuild       bool    `json:"new_build"`
	Tenure         string  `json:"tenure"`
	Address        string  `json:"address"`
	Locality       string  `json:"locality,omitempty"`
	TownCity       string  `json:"town_city,omitempty"`
	District       string  `json:"district,omitempty"`
	County         string  `json:"county,omitempty"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
}

// PropertyEPC is a single EPC record returned by the API.
type PropertyEPC struct {
	Address               string   `json:"address"`
	Postcode              string   `json:"postcode"`
	LodgementDate         string   `json:"lodgement_date"`
	UPRN                  *string  `json:"uprn"`
	CurrentEnergyRating   string   `json:"current_energy_rating"`
	PotentialEnergyRating string   `json:"potential_energy_rating"`
	TotalFloorAreaSqm     *float64 `json:"total_floor_area_sqm"`
	PropertyType          string   `json:"property_type"`
	BuiltForm             string   `json:"built_form"`
}

// JoinAddress joins the non-empty address parts with single spaces.
func JoinAddress(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func (r SoldPriceRow) ToResponse() PropertySoldPrice {
	return PropertySoldPrice{
		TransactionID:  r.TransactionID,
		Price:          r.Price,
		DateOfTransfer: r.DateOfTransfer.Format(DateLayout),
		Postcode:       r.Postcode,
		PropertyType:   r.PropertyType,
		NewBuild:       r.NewBuildFlag == "Y",
		Tenure:         r.TenureType,
		Address:        JoinAddress(r.PAON, r.SAON, r.Street),
		Locality:       r.Locality,
		TownCity:       r.TownCity,
		District:       r.District,
		County:         r.County,
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
	}
}

func (e EPC) ToResponse() PropertyEPC {
	return PropertyEPC{
		Address:               e.Address,
		Postcode:              e.Postcode,
		LodgementDate:         e.LodgementDate.Format(DateLayout),
		UPRN:                  e.UPRN,
		CurrentEnergyRating:   e.CurrentEnergyRating,
		PotentialEnergyRating: e.PotentialEnergyRating,
		TotalFloorAreaSqm:     e.TotalFloorArea,
		PropertyType:          e.PropertyType,
		BuiltForm:             e.BuiltForm,
	}
}
