package cache

import (
	"math/rand"

	"bitbucket.org/kleinnic74/tourist/domain/gps"
)

func RandomCoordinates() gps.Coordinates {
	return gps.NewCoordinates(rand.Float64()*180-90, rand.Float64()*360-180)
}
