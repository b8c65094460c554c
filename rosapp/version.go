package rosapp

import "strconv"

// Development build identification
const (
	BuildNumber   = 48
	BuildBaseline = "v1.2.0-rc1"

	// Official release numbers, only meaningful for releases
	MajorVersion = 1
	MinorVersion = 1
	Revision     = 99
	MissionRev   = 0

	LastOfficialRelease = "v1.1.0"
)

// Version is the development build version
var Version = BuildBaseline + "+dev" + strconv.Itoa(BuildNumber)

// VersionString is reported in the startup event
var VersionString = " ros App DEVELOPMENT BUILD " + Version + ", Last Official Release: " + LastOfficialRelease
