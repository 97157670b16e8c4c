// Package features shapes provider payloads into the fixed numeric rows
// persisted per identifier.
package features

import (
	"fmt"
	"strconv"

	"vkharvest/pkg/vkapi"
)

// Variant selects the open or closed profile layout
type Variant int

const (
	Open Variant = iota
	Closed
)

func (v Variant) String() string {
	if v == Closed {
		return "closed"
	}
	return "open"
}

// VariantOf picks the layout for a profile
func VariantOf(p vkapi.Profile) Variant {
	if p.Closed() {
		return Closed
	}
	return Open
}

// Field sets per variant. Order is the column order.
var (
	OpenFillers = []string{
		"about", "activities", "books", "career", "city", "has_photo", "has_mobile",
		"home_town", "schools", "status", "games", "interests", "military", "movies",
		"music", "occupation", "personal", "quotes", "relation", "universities",
	}
	OpenCounters = []string{
		"albums", "audios", "followers", "friends", "pages", "photos", "subscriptions",
		"videos", "video_playlists", "clips_followers", "gifts",
	}
	ClosedFillers  = []string{"city", "has_photo", "has_mobile", "status", "occupation"}
	ClosedCounters = []string{"friends", "pages", "subscriptions", "posts"}
)

func (v Variant) fields() (fillers, counters []string) {
	if v == Closed {
		return ClosedFillers, ClosedCounters
	}
	return OpenFillers, OpenCounters
}

// Row is one persisted feature row
type Row struct {
	ID     int64
	Values []float64
}

// ProfileColumns lists the value columns of a detail row
func ProfileColumns(v Variant) []string {
	fillers, counters := v.fields()
	cols := make([]string, 0, len(fillers)+2+2*len(counters)+1)
	cols = append(cols, fillers...)
	cols = append(cols, "have_screen_name", "fullness")
	for _, c := range counters {
		cols = append(cols, "have_"+c, c)
	}
	return append(cols, "counters_fullness")
}

// Empty reports whether a decoded JSON value counts as absent: null, "",
// [], 0 and false. Objects are present even when empty.
func Empty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case float64:
		return x == 0
	case bool:
		return !x
	default:
		return false
	}
}

func bit(present bool) float64 {
	if present {
		return 1
	}
	return 0
}

// customScreenName is 0 when the handle is missing or still the
// auto-generated "id<N>" form
func customScreenName(p vkapi.Profile, id int64) float64 {
	name, _ := p["screen_name"].(string)
	return bit(name != "" && name != "id"+strconv.FormatInt(id, 10))
}

// ProfileRow builds the detail row for a profile in layout v. A profile
// without counters gets zero for every counter bit and value.
func ProfileRow(p vkapi.Profile, v Variant) (Row, error) {
	id, err := p.ID()
	if err != nil {
		return Row{}, fmt.Errorf("profile id: %w", err)
	}
	fillers, counters := v.fields()
	values := make([]float64, 0, len(ProfileColumns(v)))

	var filled float64
	for _, f := range fillers {
		b := bit(!Empty(p[f]))
		filled += b
		values = append(values, b)
	}
	screen := customScreenName(p, id)
	filled += screen
	values = append(values, screen, filled/float64(len(fillers)+1))

	cs := p.Counters()
	var have float64
	for _, c := range counters {
		raw := cs[c]
		b := bit(!Empty(raw))
		n, _ := raw.(float64)
		have += b
		values = append(values, b, n)
	}
	values = append(values, have/float64(len(counters)))

	return Row{ID: id, Values: values}, nil
}
