// Package colors maps remote project colors onto the Google Calendar event
// palette.
package colors

// Google Calendar event color ids.
const (
	Lavender  = "1"
	Sage      = "2"
	Grape     = "3"
	Flamingo  = "4"
	Banana    = "5"
	Tangerine = "6"
	Peacock   = "7"
	Graphite  = "8"
	Blueberry = "9"
	Basil     = "10"
	Tomato    = "11"
)

// The remote palette has twenty named colors; the calendar has eleven, so
// neighbouring hues share an id.
var projectToEvent = map[string]string{
	"berry_red":   Tomato,
	"red":         Tomato,
	"orange":      Tangerine,
	"yellow":      Banana,
	"olive_green": Basil,
	"lime_green":  Sage,
	"green":       Basil,
	"mint_green":  Sage,
	"teal":        Peacock,
	"sky_blue":    Peacock,
	"light_blue":  Blueberry,
	"blue":        Blueberry,
	"grape":       Grape,
	"violet":      Grape,
	"lavender":    Lavender,
	"magenta":     Flamingo,
	"salmon":      Flamingo,
	"charcoal":    Graphite,
	"grey":        Graphite,
	"taupe":       Graphite,
}

// EventColor returns the event color id for a project color name, or ""
// (the calendar's own color) when the name is unknown.
func EventColor(projectColor string) string {
	return projectToEvent[projectColor]
}
