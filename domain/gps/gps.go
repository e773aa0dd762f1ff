package gps

import (
	"encoding/json"
	"fmt"
)

type Coordinates struct {
	lat  float64
	long float64
}

func NewCoordinates(lat, long float64) Coordinates {
	return Coordinates{lat: lat, long: long}
}

func (gps *Coordinates) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Lat  float64 `json:"lat"`
		Long float64 `json:"long"`
	}{
		Lat:  gps.lat,
		Long: gps.long,
	})
}

func (gps *Coordinates) UnmarshalJSON(buf []byte) error {
	var c struct {
		Lat  float64 `json:"lat"`
		Long float64 `json:"long"`
	}
	if err := json.Unmarshal(buf, &c); err != nil {
		return err
	}
	gps.lat = c.Lat
	gps.long = c.Long
	return nil
}

func (c Coordinates) Lat() float64 {
	return c.lat
}

func (c Coordinates) Long() float64 {
	return c.long
}

func (c Coordinates) IsValid() bool {
	return c.lat >= -90 && c.lat <= 90 && c.long >= -180 && c.long <= 180
}

func (c Coordinates) String() string {
	return fmt.Sprintf("[%f;%f]", c.lat, c.long)
}
