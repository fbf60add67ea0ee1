package visualization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"strings"

	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/pipeline"
	"github.com/nvandessel/conviction/internal/ranking"
)

const (
	chartWidth  = 640
	chartHeight = 160
	layoutWidth = 640
	rowHeight   = 28
)

// series is one polyline of a step chart.
type series struct {
	Label  string
	Color  string
	Points string
	Max    float64
}

type svgNode struct {
	ID     int
	X, Y   float64
	Radius float64
	Label  string
	Color  string
}

type svgEdge struct {
	X1, Y1, X2, Y2 float64
	Width          float64
	Dash           string
}

type proposalRow struct {
	ID         int
	Status     string
	Funds      float64
	Conviction string
	Trigger    string
	Age        int
}

// htmlTemplateData holds data passed to the HTML template.
// GraphJSON is pre-sanitized JSON (via json.HTMLEscape) safe for inline <script>.
type htmlTemplateData struct {
	RunID        string
	Step         int
	Participants int
	Charts       []series
	ChartWidth   int
	ChartHeight  int
	Nodes        []svgNode
	Edges        []svgEdge
	LayoutWidth  int
	LayoutHeight float64
	Proposals    []proposalRow
	GraphJSON    template.JS
}

// RenderHTML produces a self-contained HTML report of a run: step charts,
// the network as of its last saved step and a proposal table.
func RenderHTML(runID string, step int, snap graph.Snapshot, steps []pipeline.Snapshot) ([]byte, error) {
	graphJSON, err := json.Marshal(RenderJSON(snap, Options{HideSupport: true}))
	if err != nil {
		return nil, fmt.Errorf("marshal graph data: %w", err)
	}

	tmplBytes, err := templates.ReadFile("templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read HTML template: %w", err)
	}
	tmpl, err := template.New("report").Parse(string(tmplBytes))
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	// json.HTMLEscape converts <, >, & to unicode escapes, preventing
	// </script> breakout.
	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, graphJSON)

	nodes, edges, height := layout(snap)
	data := htmlTemplateData{
		RunID:        runID,
		Step:         step,
		Participants: len(snap.Participants),
		ChartWidth:   chartWidth,
		ChartHeight:  chartHeight,
		Charts: []series{
			chart("funding pool", "steelblue", steps, func(s pipeline.Snapshot) float64 { return s.FundingPool }),
			chart("sentiment", "goldenrod", steps, func(s pipeline.Snapshot) float64 { return s.Sentiment }),
		},
		Nodes:        nodes,
		Edges:        edges,
		LayoutWidth:  layoutWidth,
		LayoutHeight: height,
		Proposals:    proposalRows(snap),
		GraphJSON:    template.JS(escaped.String()), // #nosec G203
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

// chart scales one variable of the step history into SVG polyline points.
func chart(label, color string, steps []pipeline.Snapshot, value func(pipeline.Snapshot) float64) series {
	s := series{Label: label, Color: color}
	if len(steps) == 0 {
		return s
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, st := range steps {
		v := value(st)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	s.Max = hi
	span := hi - lo
	if span == 0 {
		span = 1
	}
	dx := float64(chartWidth)
	if len(steps) > 1 {
		dx = float64(chartWidth) / float64(len(steps)-1)
	}

	points := make([]string, len(steps))
	for i, st := range steps {
		x := float64(i) * dx
		y := float64(chartHeight) - (value(st)-lo)/span*float64(chartHeight)
		points[i] = fmt.Sprintf("%.1f,%.1f", x, y)
	}
	s.Points = strings.Join(points, " ")
	return s
}

// layout places participants in a left column and proposals in a right
// column. Participants are sized by influence rank. Only staked support
// edges and conflicts are drawn.
func layout(snap graph.Snapshot) ([]svgNode, []svgEdge, float64) {
	pos := make(map[int][2]float64)
	var nodes []svgNode
	rank := ranking.InfluenceRank(snap, ranking.DefaultPageRankConfig())

	left, right := 80.0, float64(layoutWidth)-80
	for k, p := range snap.Participants {
		y := float64(k+1) * rowHeight
		pos[p.ID] = [2]float64{left, y}
		nodes = append(nodes, svgNode{ID: p.ID, X: left, Y: y, Radius: 6 + 6*rank[p.ID], Label: fmt.Sprintf("p%d", p.ID), Color: "lightgray"})
	}
	for k, p := range snap.Proposals {
		y := float64(k+1) * rowHeight
		pos[p.ID] = [2]float64{right, y}
		color := statusColors[p.Status]
		if color == "" {
			color = "lightgray"
		}
		nodes = append(nodes, svgNode{ID: p.ID, X: right, Y: y, Radius: 9, Label: fmt.Sprintf("#%d", p.ID), Color: color})
	}

	var maxTokens float64
	for _, e := range snap.Edges {
		if e.Kind == graph.EdgeSupport {
			maxTokens = math.Max(maxTokens, e.Tokens)
		}
	}

	var edges []svgEdge
	for _, e := range snap.Edges {
		a, b := pos[e.From], pos[e.To]
		switch {
		case e.Kind == graph.EdgeSupport && e.Tokens > 0:
			edges = append(edges, svgEdge{X1: a[0], Y1: a[1], X2: b[0], Y2: b[1], Width: 0.5 + 3*e.Tokens/maxTokens})
		case e.Kind == graph.EdgeConflict:
			// Bow conflicts out to the right of the proposal column.
			edges = append(edges, svgEdge{X1: a[0], Y1: a[1], X2: b[0] + 40*e.Weight, Y2: b[1], Width: 1, Dash: "4 3"})
		}
	}

	rows := math.Max(float64(len(snap.Participants)), float64(len(snap.Proposals)))
	return nodes, edges, (rows + 1) * rowHeight
}

func proposalRows(snap graph.Snapshot) []proposalRow {
	rows := make([]proposalRow, 0, len(snap.Proposals))
	for _, p := range snap.Proposals {
		trigger := fmt.Sprintf("%.2f", p.Trigger)
		if p.Trigger == math.MaxFloat64 {
			trigger = "unreachable"
		}
		rows = append(rows, proposalRow{
			ID:         p.ID,
			Status:     string(p.Status),
			Funds:      p.FundsRequested,
			Conviction: p.Conviction.String(),
			Trigger:    trigger,
			Age:        p.Age,
		})
	}
	return rows
}
