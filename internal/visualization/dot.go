// Package visualization renders conviction networks in various output formats.
package visualization

import (
	"fmt"
	"strings"

	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/ranking"
)

// Format specifies the output format for network rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// statusColors maps proposal statuses to DOT colors.
var statusColors = map[models.ProposalStatus]string{
	models.StatusCandidate: "goldenrod",
	models.StatusActive:    "steelblue",
	models.StatusCompleted: "mediumseagreen",
	models.StatusFailed:    "tomato",
}

// edgeStyles maps edge kinds to DOT styles.
var edgeStyles = map[graph.EdgeKind]string{
	graph.EdgeSupport:   "solid",
	graph.EdgeConflict:  "dashed",
	graph.EdgeInfluence: "dotted",
}

// Options filter what is rendered.
type Options struct {
	// MinAffinity hides support edges below this affinity unless they
	// carry staked tokens.
	MinAffinity float64

	// HideSupport omits support edges entirely; they form a complete
	// bipartite graph and dominate larger renders.
	HideSupport bool
}

// visible reports whether e passes the filter.
func (o Options) visible(e graph.Edge) bool {
	if e.Kind != graph.EdgeSupport {
		return true
	}
	if o.HideSupport {
		return false
	}
	return e.Tokens > 0 || e.Affinity >= o.MinAffinity
}

func nodeName(id int) string { return fmt.Sprintf("n%d", id) }

// RenderDOT produces a Graphviz DOT representation of the network.
func RenderDOT(snap graph.Snapshot, opts Options) string {
	var b strings.Builder
	b.WriteString("digraph conviction {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, p := range snap.Participants {
		fmt.Fprintf(&b, "  %s [label=%q, shape=ellipse, fillcolor=\"lightgray\", tooltip=\"sentiment=%.2f holdings=%.2f\"];\n",
			nodeName(p.ID), fmt.Sprintf("participant %d", p.ID), p.Sentiment, p.Holdings)
	}
	for _, p := range snap.Proposals {
		color := statusColors[p.Status]
		if color == "" {
			color = "lightgray"
		}
		label := fmt.Sprintf("proposal %d\\n%.0f requested", p.ID, p.FundsRequested)
		fmt.Fprintf(&b, "  %s [label=\"%s\", shape=box, fillcolor=%q, tooltip=\"conviction=%s trigger=%.2f age=%d\"];\n",
			nodeName(p.ID), label, color, p.Conviction, p.Trigger, p.Age)
	}
	b.WriteString("\n")

	for _, e := range snap.Edges {
		if !opts.visible(e) {
			continue
		}
		style := edgeStyles[e.Kind]
		if style == "" {
			style = "solid"
		}
		label := fmt.Sprintf("%s %.2f", e.Kind, e.Weight)
		if e.Kind == graph.EdgeSupport {
			label = fmt.Sprintf("a=%.2f t=%.1f", e.Affinity, e.Tokens)
		}
		fmt.Fprintf(&b, "  %s -> %s [label=%q, style=%s];\n", nodeName(e.From), nodeName(e.To), label, style)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-ready graph with nodes and edges arrays.
func RenderJSON(snap graph.Snapshot, opts Options) map[string]interface{} {
	nodes := make([]map[string]interface{}, 0, len(snap.Participants)+len(snap.Proposals))
	rank := ranking.InfluenceRank(snap, ranking.DefaultPageRankConfig())
	for _, p := range snap.Participants {
		nodes = append(nodes, map[string]interface{}{
			"id":             p.ID,
			"kind":           string(graph.KindParticipant),
			"sentiment":      p.Sentiment,
			"holdings":       p.Holdings,
			"influence_rank": rank[p.ID],
		})
	}
	for _, p := range snap.Proposals {
		entry := map[string]interface{}{
			"id":              p.ID,
			"kind":            string(graph.KindProposal),
			"status":          string(p.Status),
			"funds_requested": p.FundsRequested,
			"trigger":         p.Trigger,
			"age":             p.Age,
		}
		if v, ok := p.Conviction.Value(); ok {
			entry["conviction"] = v
		}
		nodes = append(nodes, entry)
	}

	edges := make([]map[string]interface{}, 0, len(snap.Edges))
	for _, e := range snap.Edges {
		if !opts.visible(e) {
			continue
		}
		entry := map[string]interface{}{
			"source": e.From,
			"target": e.To,
			"kind":   string(e.Kind),
		}
		if e.Kind == graph.EdgeSupport {
			entry["affinity"] = e.Affinity
			entry["tokens"] = e.Tokens
			if e.Conviction != nil {
				entry["conviction"] = *e.Conviction
			}
		} else {
			entry["weight"] = e.Weight
		}
		edges = append(edges, entry)
	}

	return map[string]interface{}{
		"nodes":      nodes,
		"edges":      edges,
		"node_count": len(nodes),
		"edge_count": len(edges),
	}
}
