package models

import (
	"time"

	"github.com/uptrace/bun"
)

// EPC is one Energy Performance Certificate lodgement.
type EPC struct {
	bun.BaseModel `bun:"table:epc_data,alias:epc"`

	LMKKey                string    `bun:"lmk_key,pk,type:varchar"`
	Address               string    `bun:"address,nullzero"`
	Postcode              string    `bun:"postcode,nullzero"`
	UPRN                  *string   `bun:"uprn"`
	LodgementDate         time.Time `bun:"lodgement_date,type:date"`
	CurrentEnergyRating   string    `bun:"current_energy_rating,nullzero"`
	PotentialEnergyRating string    `bun:"potential_energy_rating,nullzero"`
	TotalFloorArea        *float64  `bun:"total_floor_area,type:double precision"`
	PropertyType          string    `bun:"property_type,nullzero"`
	BuiltForm             string    `bun:"built_form,nullzero"`
}
