package render

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplan/internal/dayview"
	"dayplan/internal/model"
)

func sampleView() dayview.View {
	return dayview.Build("2025-03-14", []model.Task{
		{ID: "a", StartAt: "09:00", EndAt: "10:00", Type: model.WorkMaintenance, Description: "Ketel <onderhoud> & check"},
		{ID: "b", StartAt: "09:30", EndAt: "10:30", Type: model.WorkClientVisit},
		{ID: "c", StartAt: "12:00", EndAt: "12:10", Source: "ics:work", Description: "Bellen"},
	}, dayview.DefaultOptions())
}

// wellFormed walks the document with encoding/xml.
func wellFormed(t *testing.T, doc string) {
	t.Helper()
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return
		}
		require.NoError(t, err)
	}
}

func TestSVG_DrawsBlocksAndGrid(t *testing.T) {
	doc := SVG(sampleView())
	wellFormed(t, doc)

	assert.True(t, strings.HasPrefix(doc, `<?xml version="1.0"`))
	assert.Contains(t, doc, `width="368" height="880"`)
	assert.Equal(t, 3, strings.Count(doc, "<g data-id="))
	assert.Contains(t, doc, `data-id="a" data-lane="0" data-lanes="2"`)
	assert.Contains(t, doc, `data-id="b" data-lane="1" data-lanes="2"`)
	assert.Contains(t, doc, "Ketel &lt;onderhoud&gt; &amp; check")
	assert.Contains(t, doc, ">07:00</text>")
	assert.Contains(t, doc, ">19:00</text>")
	// 13 hour lines and 12 half-hour lines.
	assert.Equal(t, 25, strings.Count(doc, "<line "))
}

func TestSVG_ShortBlockHasNoTimeLabel(t *testing.T) {
	doc := SVG(sampleView())
	assert.Contains(t, doc, "09:00 - 10:00")
	assert.NotContains(t, doc, "12:00 - 12:10")
}

func TestSVG_EmptyDay(t *testing.T) {
	doc := SVG(dayview.Build("2025-03-14", nil, dayview.DefaultOptions()))
	wellFormed(t, doc)
	assert.NotContains(t, doc, "<g data-id=")
}

func TestNum(t *testing.T) {
	assert.Equal(t, "0", num(0))
	assert.Equal(t, "100", num(100))
	assert.Equal(t, "12.5", num(12.5))
	assert.Equal(t, "0.33", num(1.0/3))
}

func TestTerminal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Terminal(&buf, sampleView()))
	out := buf.String()

	assert.Contains(t, out, "2025-03-14")
	assert.Contains(t, out, "07:00-19:00")
	assert.Contains(t, out, "09:00-10:00")
	assert.Contains(t, out, "2/2")
	assert.Contains(t, out, "Bellen")
	assert.Contains(t, out, "(agenda)")
}

func TestTerminal_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Terminal(&buf, dayview.Build("2025-03-14", nil, dayview.DefaultOptions())))
	assert.Contains(t, buf.String(), "Geen taken")
}
