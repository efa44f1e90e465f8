package fortune

// Tone is a semantic hint for presentation; terminal surfaces map it to colours.
type Tone string

const (
	TonePlain     Tone = ""
	ToneHighlight Tone = "highlight"
	ToneMuted     Tone = "muted"
	ToneWood      Tone = "wood"
	ToneFire      Tone = "fire"
	ToneEarth     Tone = "earth"
	ToneMetal     Tone = "metal"
	ToneWater     Tone = "water"
	ToneAir       Tone = "air"
	ToneUpright   Tone = "upright"
	ToneReversed  Tone = "reversed"
)

// DisplayRow is one labelled value.
type DisplayRow struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Tone  Tone   `json:"tone,omitempty"`
}

// DisplayGroup is a headed block of rows.
type DisplayGroup struct {
	Heading string       `json:"heading"`
	Rows    []DisplayRow `json:"rows"`
}

// Display is the structured, surface-neutral rendering of processed data.
type Display struct {
	Title  string         `json:"title"`
	Groups []DisplayGroup `json:"groups"`
}

// AddGroup appends a group and returns a pointer for filling rows.
// The pointer is valid until the next AddGroup.
func (d *Display) AddGroup(heading string) *DisplayGroup {
	d.Groups = append(d.Groups, DisplayGroup{Heading: heading})
	return &d.Groups[len(d.Groups)-1]
}

// Add appends a row to the group.
func (g *DisplayGroup) Add(label, value string, tone Tone) {
	g.Rows = append(g.Rows, DisplayRow{Label: label, Value: value, Tone: tone})
}
