package render

import (
	"fmt"
	"html"
	"io"
	"strings"
)

// WriteSVG writes the composite of both layers as a standalone SVG
// document of the given size.
func WriteSVG(w io.Writer, s StructuralLayer, o OverlayLayer, width, height float64) error {
	var svg strings.Builder
	fmt.Fprintf(&svg, `<?xml version="1.0" encoding="UTF-8"?>
<svg width="%s" height="%s" viewBox="0 0 %s %s" xmlns="http://www.w3.org/2000/svg">
`, num(width), num(height), num(width), num(height))
	if s.Background != "" {
		fmt.Fprintf(&svg, `<rect width="100%%" height="100%%" fill="%s"/>
`, s.Background)
	}

	tf := s.Transform
	fmt.Fprintf(&svg, `<g class="structural" transform="translate(%s %s) scale(%s)">
`, num(tf.X), num(tf.Y), num(tf.Scale))
	for _, e := range s.Edges {
		fmt.Fprintf(&svg, `<line data-target="%s" x1="%s" y1="%s" x2="%s" y2="%s" stroke="%s" stroke-width="%s" stroke-opacity="%s" stroke-linecap="round"/>
`, html.EscapeString(e.Target), num(e.X1), num(e.Y1), num(e.X2), num(e.Y2), e.Color, num(e.Thickness), num(e.Opacity))
	}
	a := s.Anchor
	if a.Radius > 0 {
		fmt.Fprintf(&svg, `<circle class="anchor" cx="%s" cy="%s" r="%s" fill="%s"/>
`, num(a.X), num(a.Y), num(a.Radius), a.Color)
	}
	svg.WriteString("</g>\n")

	svg.WriteString(`<g class="overlay">` + "\n")
	for _, n := range o.Nodes {
		writeNode(&svg, n)
	}
	svg.WriteString("</g>\n</svg>\n")

	_, err := io.WriteString(w, svg.String())
	return err
}

func writeNode(svg *strings.Builder, n NodeVisual) {
	fmt.Fprintf(svg, `<g class="node %s" data-id="%s" data-health="%s" transform="translate(%s %s)" opacity="%s">
<title>%s</title>
`, n.Variant, html.EscapeString(n.ID), n.Health, num(n.X), num(n.Y), num(n.Opacity), html.EscapeString(n.Name))
	fmt.Fprintf(svg, `<g transform="rotate(%s)">
`, num(n.Rotation))
	if !n.Animation.Static() {
		amp := num(n.Animation.Amplitude)
		period := n.Animation.Period.Seconds()
		fmt.Fprintf(svg, `<animateTransform attributeName="transform" type="rotate" additive="sum" values="-%s;%s;-%s" dur="%ss" begin="-%ss" repeatCount="indefinite"/>
`, amp, amp, amp, num(period), num(period*n.Animation.Phase))
	}

	h := n.Size / 2
	switch n.Variant {
	case VariantLeaf:
		writeLeaf(svg, h, n.Color)
	case VariantLeafIndicator:
		writeLeaf(svg, h, n.Color)
		fmt.Fprintf(svg, `<circle class="indicator" cx="%s" cy="%s" r="%s" fill="%s"/>
`, num(h*0.6), num(-h*0.8), num(h*0.3), n.Accent)
	case VariantClosedBud:
		fmt.Fprintf(svg, `<path d="M0,%s C%s,%s %s,%s 0,%s C%s,%s %s,%s 0,%s Z" fill="%s"/>
`, num(-h*0.8), num(h*0.6), num(-h*0.3), num(h*0.5), num(h*0.6), num(h*0.7),
			num(-h*0.5), num(h*0.6), num(-h*0.6), num(-h*0.3), num(-h*0.8), n.Color)
		fmt.Fprintf(svg, `<path d="M%s,%s L0,%s L%s,%s" stroke="%s" stroke-width="1.5" fill="none"/>
`, num(-h*0.4), num(h), num(h*0.6), num(h*0.4), num(h), n.Color)
	case VariantWiltedLeaf:
		writeLeaf(svg, h, n.Color)
		for _, y := range []float64{-0.35, 0.15} {
			fmt.Fprintf(svg, `<line class="decay" x1="%s" y1="%s" x2="%s" y2="%s" stroke="#5d4037" stroke-width="1"/>
`, num(-h*0.25), num(h*y), num(h*0.2), num(h*(y+0.15)))
		}
	}
	svg.WriteString("</g>\n</g>\n")
}

func writeLeaf(svg *strings.Builder, h float64, color string) {
	fmt.Fprintf(svg, `<path d="M0,%s C%s,%s %s,%s 0,%s C%s,%s %s,%s 0,%s Z" fill="%s"/>
<line x1="0" y1="%s" x2="0" y2="%s" stroke="#ffffff" stroke-opacity="0.5" stroke-width="1"/>
`, num(-h), num(h*0.7), num(-h*0.5), num(h*0.7), num(h*0.5), num(h),
		num(-h*0.7), num(h*0.5), num(-h*0.7), num(-h*0.5), num(-h), color,
		num(-h*0.8), num(h*0.8))
}

// num formats a coordinate compactly.
func num(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
