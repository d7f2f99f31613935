package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
)

// SRID of every stored point (WGS 84 longitude/latitude).
const SRID = 4326

// Point is a WGS 84 coordinate. It is written to PostGIS as EWKT so it can be
// bound straight into a geography(Point,4326) column.
type Point struct {
	Lon float64 `json:"longitude"`
	Lat float64 `json:"latitude"`
}

func (p Point) String() string {
	return fmt.Sprintf("SRID=%d;POINT(%s %s)", SRID,
		strconv.FormatFloat(p.Lon, 'f', -1, 64),
		strconv.FormatFloat(p.Lat, 'f', -1, 64))
}

// Value implements driver.Valuer.
func (p *Point) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return p.String(), nil
}
