// Package render draws a laid out day as SVG for the web and the preview
// capture, or as a styled lane table for the terminal.
package render

import (
	"fmt"
	"strings"

	"dayplan/internal/dayview"
	"dayplan/internal/timeline"
)

// SVG layout constants, in CSS pixels.
const (
	LabelWidth  = 48
	TopPadding  = 8
	blockRadius = 6
	fontFamily  = "Inter, Helvetica, Arial, sans-serif"

	hourStroke = "#D1D5DB"
	slotStroke = "#EEF0F3"
	labelFill  = "#6B7280"
	background = "#FFFFFF"
)

// minTimeLabelPx is the block height below which only the title is drawn.
const minTimeLabelPx = 48

// SVG renders v as a standalone SVG document. The track starts LabelWidth
// pixels from the left and TopPadding from the top; hour labels sit in the
// left gutter.
func SVG(v dayview.View) string {
	width := LabelWidth + v.WidthPx
	height := v.HeightPx + 2*TopPadding

	var svg strings.Builder
	svg.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg width="%s" height="%s" viewBox="0 0 %s %s" xmlns="http://www.w3.org/2000/svg" data-date="%s">
<rect width="100%%" height="100%%" fill="%s"/>
<defs>
<style>
.hour-label { font-family: %s; font-size: 11px; fill: %s; }
.block-title { font-family: %s; font-size: 13px; font-weight: 600; }
.block-time { font-family: %s; font-size: 11px; }
</style>
</defs>
`, num(width), num(height), num(width), num(height), escapeXML(v.Date), background,
		fontFamily, labelFill, fontFamily, fontFamily))

	for _, line := range v.Grid {
		drawGridLine(&svg, line, v.WidthPx)
	}
	for _, b := range v.Blocks {
		drawBlock(&svg, b)
	}

	svg.WriteString("</svg>\n")
	return svg.String()
}

func drawGridLine(svg *strings.Builder, line timeline.GridLine, trackPx float64) {
	y := line.Y + TopPadding
	stroke, dash := slotStroke, ` stroke-dasharray="4 4"`
	if line.Hour {
		stroke, dash = hourStroke, ""
	}
	svg.WriteString(fmt.Sprintf(`<line x1="%d" y1="%s" x2="%s" y2="%s" stroke="%s" stroke-width="1"%s/>`+"\n",
		LabelWidth, num(y), num(LabelWidth+trackPx), num(y), stroke, dash))
	if line.Label != "" {
		svg.WriteString(fmt.Sprintf(`<text class="hour-label" x="%d" y="%s" text-anchor="end" dominant-baseline="middle">%s</text>`+"\n",
			LabelWidth-6, num(y), escapeXML(line.Label)))
	}
}

func drawBlock(svg *strings.Builder, b dayview.Block) {
	p := b.Variant.Palette()
	x := LabelWidth + b.X
	y := b.Y + TopPadding

	svg.WriteString(fmt.Sprintf(`<g data-id="%s" data-lane="%d" data-lanes="%d">`+"\n",
		escapeXML(b.ID), b.Lane, b.LaneCount))
	svg.WriteString(fmt.Sprintf(`<rect x="%s" y="%s" width="%s" height="%s" rx="%d" fill="%s" stroke="%s" stroke-width="1"/>`+"\n",
		num(x), num(y), num(b.WidthPx), num(b.Height), blockRadius, p.Fill, p.Border))

	svg.WriteString(fmt.Sprintf(`<text class="block-title" x="%s" y="%s" fill="%s">%s</text>`+"\n",
		num(x+8), num(y+17), p.Text, escapeXML(b.Title)))
	if b.Height >= minTimeLabelPx {
		svg.WriteString(fmt.Sprintf(`<text class="block-time" x="%s" y="%s" fill="%s">%s - %s</text>`+"\n",
			num(x+8), num(y+31), p.Text, escapeXML(b.StartAt), escapeXML(b.EndAt)))
	}
	svg.WriteString("</g>\n")
}

// num formats a coordinate with at most two decimals and no trailing zeros.
func num(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
