package consts

import (
	"os"
	"strings"
)

// devmode is meant to be set at build time:
//
//	go build -ldflags "-X bitbucket.org/kleinnic74/tourist/consts.devmode=true"
var devmode = "false"

// IsDevMode reports whether the binary runs in development mode. The
// TOURIST_DEVMODE environment variable overrides the build-time value.
func IsDevMode() bool {
	if v, ok := os.LookupEnv("TOURIST_DEVMODE"); ok {
		return strings.EqualFold(v, "true")
	}
	return strings.EqualFold(devmode, "true")
}
