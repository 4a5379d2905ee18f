package dom

import (
	"github.com/PuerkitoBio/goquery"

	"rightblock/internal/site"
)

// MinIconWidth rejects tiny look-alike icons
const MinIconWidth = 16

const defaultIconWidth = 24

// unrelatedViewBoxes belong to small glyphs that share the "More" label
var unrelatedViewBoxes = map[string]bool{
	"0 0 12 12": true,
	"0 0 13 12": true,
}

// MoreButton is a "more options" control found next to a post or on a profile
type MoreButton struct {
	Ref      string
	Username string
	// Strict is the profile menu signature: a circle plus at least three paths
	Strict           bool
	HasShape         bool
	ViewBox          string
	Width            int
	Annotated        bool
	HasSiblingMarker bool
}

// PassesIconFilter applies the structural checks that weed out unrelated icons
func (b MoreButton) PassesIconFilter() bool {
	if !b.HasShape {
		return false
	}
	if unrelatedViewBoxes[b.ViewBox] {
		return false
	}
	return b.Width >= MinIconWidth
}

// MoreButtons returns every labelled more-icon's enclosing button in document
// order. Icons outside a button, or buttons without a parent, are skipped.
func (s *Snapshot) MoreButtons() []MoreButton {
	seen := make(map[string]bool)
	var out []MoreButton
	s.doc.Find(SelMoreIcon).Each(func(_ int, svg *goquery.Selection) {
		btn := svg.Closest(SelButton)
		if btn.Length() == 0 || btn.Parent().Length() == 0 {
			return
		}
		ref := btn.AttrOr(AttrRef, "")
		if ref != "" && seen[ref] {
			return
		}
		seen[ref] = true
		out = append(out, moreButton(svg, btn))
	})
	return out
}

func moreButton(svg, btn *goquery.Selection) MoreButton {
	viewBox, ok := svg.Attr("viewBox")
	if !ok {
		viewBox = svg.AttrOr("viewbox", "")
	}
	hasCircle := svg.Find("circle").Length() > 0
	paths := svg.Find("path").Length()
	return MoreButton{
		Ref:              btn.AttrOr(AttrRef, ""),
		Username:         usernameNear(btn),
		Strict:           hasCircle && paths >= 3,
		HasShape:         hasCircle || paths > 0,
		ViewBox:          viewBox,
		Width:            attrInt(svg, AttrWidth, defaultIconWidth),
		Annotated:        btn.AttrOr(AttrChecked, "") == "true",
		HasSiblingMarker: btn.Parent().Find("."+MarkerClass).Length() > 0,
	}
}

// usernameNear walks up from the button's parent looking for a profile link
func usernameNear(btn *goquery.Selection) string {
	p := btn.Parent()
	for i := 0; i < UsernameWalkDepth && p.Length() > 0; i++ {
		link := p.Find(SelProfileLink).First()
		if link.Length() > 0 {
			return site.UsernameFromHref(link.AttrOr("href", ""))
		}
		p = p.Parent()
	}
	return ""
}

// ProfileMoreButton picks the profile-level menu trigger. strict is false
// when only a looser match exists; ok is false when no labelled icon sits in
// a button at all.
func (s *Snapshot) ProfileMoreButton() (ref string, strict bool, ok bool) {
	buttons := s.MoreButtons()
	for _, b := range buttons {
		if b.Strict && b.Ref != "" {
			return b.Ref, true, true
		}
	}
	for _, b := range buttons {
		if b.Ref != "" {
			return b.Ref, false, true
		}
	}
	return "", false, false
}
