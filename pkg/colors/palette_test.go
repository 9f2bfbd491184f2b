package colors

import "testing"

func TestEventColor(t *testing.T) {
	cases := map[string]string{
		"berry_red": Tomato,
		"grey":      Graphite,
		"sky_blue":  Peacock,
		"lavender":  Lavender,
		"":          "",
		"neon":      "",
	}
	for in, want := range cases {
		if got := EventColor(in); got != want {
			t.Errorf("EventColor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEveryMappedIDIsValid(t *testing.T) {
	valid := map[string]bool{}
	for _, id := range []string{Lavender, Sage, Grape, Flamingo, Banana, Tangerine, Peacock, Graphite, Blueberry, Basil, Tomato} {
		valid[id] = true
	}
	for name, id := range projectToEvent {
		if !valid[id] {
			t.Errorf("%s maps to unknown color id %q", name, id)
		}
	}
}
