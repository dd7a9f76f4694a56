package model

import "strings"

// Variant is the colour family a task is drawn in.
type Variant string

const (
	VariantBlue   Variant = "blue"
	VariantYellow Variant = "yellow"
	VariantGreen  Variant = "green"
	VariantGray   Variant = "gray"
)

// Work types offered when creating a task.
const (
	WorkMaintenance = "maintenance"
	WorkProject     = "project"
	WorkClientVisit = "client_visit"
	WorkFreeTask    = "free_task"
)

var typeToVariant = map[string]Variant{
	WorkMaintenance: VariantBlue,
	WorkProject:     VariantYellow,
	WorkClientVisit: VariantGreen,
	WorkFreeTask:    VariantGray,
	// legacy Dutch values
	"onderhoud":     VariantBlue,
	"projectwerk":   VariantYellow,
	"klantenbezoek": VariantGreen,
	"vrije_taak":    VariantGray,
}

// ResolveVariant maps a task type (or a variant name) to a Variant.
// Unknown and empty values are blue.
func ResolveVariant(taskType string) Variant {
	lowered := strings.ToLower(strings.TrimSpace(taskType))
	switch v := Variant(lowered); v {
	case VariantBlue, VariantYellow, VariantGreen, VariantGray:
		return v
	}
	if v, ok := typeToVariant[lowered]; ok {
		return v
	}
	return VariantBlue
}

// Palette holds the colours for one variant.
type Palette struct {
	Text   string
	Fill   string
	Border string
}

var palettes = map[Variant]Palette{
	VariantBlue:   {Text: "#2563EB", Fill: "rgba(37, 99, 235, 0.2)", Border: "#2563EB"},
	VariantYellow: {Text: "#B45309", Fill: "rgba(255, 215, 0, 0.2)", Border: "#F59E0B"},
	VariantGreen:  {Text: "#15803D", Fill: "rgba(76, 175, 80, 0.2)", Border: "#22C55E"},
	VariantGray:   {Text: "#6B7280", Fill: "rgba(156, 163, 175, 0.2)", Border: "#6B7280"},
}

// Palette returns the drawing colours for v, falling back to blue.
func (v Variant) Palette() Palette {
	if p, ok := palettes[v]; ok {
		return p
	}
	return palettes[VariantBlue]
}
