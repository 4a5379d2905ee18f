// Package dom answers questions about a captured page.
//
// The browser tags every element the tool may act on with a data-rb-ref id
// plus the layout facts HTML alone cannot carry (computed colour, visibility,
// rendered icon width), then hands over the document HTML. A Snapshot is a
// goquery document over that HTML; every query here is a pure function of it.
// Actions go back to the live page by ref.
package dom

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"rightblock/internal/models"
	"rightblock/internal/site"
)

// Attributes written into the live page
const (
	AttrRef     = "data-rb-ref"
	AttrColor   = "data-rb-color"
	AttrVisible = "data-rb-visible"
	AttrWidth   = "data-rb-width"
	AttrHidden  = "data-rb-hidden"
	AttrChecked = "data-rb-checked"

	MarkerClass     = "rb-marker"
	AttrMarkerFor   = "data-rb-for"
	AttrMarkerUser  = "data-rb-user"
	AttrMarkerState = "data-rb-state"
)

// Host page selectors
const (
	SelMoreIcon    = `svg[aria-label="更多"], svg[aria-label="More"]`
	SelButton      = `div[role="button"]`
	SelMenuItem    = `div[role="menuitem"], div[role="button"]`
	SelDialog      = `div[role="dialog"]`
	SelProfileLink = `a[href^="/@"]`
	selMainContent = `main, div[role="main"], div[data-pressable-container="true"]`
)

// DestructiveColor is the computed text colour of the host's confirm button
const DestructiveColor = "rgb(255, 59, 48)"

// UsernameWalkDepth is how many ancestors are searched for a profile link
const UsernameWalkDepth = 5

// Snapshot is one parsed capture of the page
type Snapshot struct {
	doc *goquery.Document
}

// Parse builds a Snapshot from captured HTML
func Parse(html string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &Snapshot{doc: doc}, nil
}

// Document exposes the underlying goquery document
func (s *Snapshot) Document() *goquery.Document {
	return s.doc
}

// Hidden reports whether the page was in a background tab when captured
func (s *Snapshot) Hidden() bool {
	return s.doc.Find("body").AttrOr(AttrHidden, "false") == "true"
}

// Element is an actionable element of the page
type Element struct {
	Ref     string
	Text    string
	Color   string
	Visible bool
}

func element(sel *goquery.Selection) Element {
	return Element{
		Ref:     sel.AttrOr(AttrRef, ""),
		Text:    strings.TrimSpace(sel.Text()),
		Color:   sel.AttrOr(AttrColor, ""),
		Visible: sel.AttrOr(AttrVisible, "true") != "false",
	}
}

func elements(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, e *goquery.Selection) {
		out = append(out, element(e))
	})
	return out
}

// MenuItems returns menu entries and button-like controls in document order
func (s *Snapshot) MenuItems() []Element {
	return elements(s.doc.Find(SelMenuItem))
}

// Buttons returns every button-role element in document order
func (s *Snapshot) Buttons() []Element {
	return elements(s.doc.Find(SelButton))
}

// DialogOpen reports whether any dialog is present
func (s *Snapshot) DialogOpen() bool {
	return s.doc.Find(SelDialog).Length() > 0
}

// DialogButtons returns the buttons of the first open dialog
func (s *Snapshot) DialogButtons() []Element {
	return elements(s.doc.Find(SelDialog).First().Find(SelButton))
}

// RestrictionShown reports whether an open dialog carries a rate-limit message
func (s *Snapshot) RestrictionShown() bool {
	shown := false
	s.doc.Find(SelDialog).EachWithBreak(func(_ int, d *goquery.Selection) bool {
		shown = IsRestriction(d.Text())
		return !shown
	})
	return shown
}

// ConfirmButton finds the block confirmation, scanning in reverse so the
// topmost overlay wins. It must be laid out and either mention blocking or
// use the destructive colour.
func (s *Snapshot) ConfirmButton() (Element, bool) {
	buttons := s.Buttons()
	for i := len(buttons) - 1; i >= 0; i-- {
		b := buttons[i]
		if b.Visible && IsConfirm(b) {
			return b, true
		}
	}
	return Element{}, false
}

// IsConfirm reports whether a button looks like the destructive confirm action
func IsConfirm(b Element) bool {
	return MentionsBlock(b.Text) || b.Color == DestructiveColor
}

// MyUsername finds the logged-in account from the navigation profile link,
// which sits outside the feed and has an icon or no text.
func (s *Snapshot) MyUsername() string {
	var me string
	s.doc.Find(SelProfileLink).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if a.Closest(selMainContent).Length() > 0 {
			return true
		}
		if strings.TrimSpace(a.Text()) != "" && a.Find("svg").Length() == 0 {
			return true
		}
		me = site.UsernameFromHref(a.AttrOr("href", ""))
		return me == ""
	})
	return me
}

// DialogUsernames lists the visible profile links inside open dialogs,
// deduplicated in document order.
func (s *Snapshot) DialogUsernames() []string {
	seen := make(map[string]bool)
	var users []string
	s.doc.Find(SelDialog).Find(SelProfileLink).Each(func(_ int, a *goquery.Selection) {
		if a.AttrOr(AttrVisible, "true") == "false" {
			return
		}
		u := site.UsernameFromHref(a.AttrOr("href", ""))
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		users = append(users, u)
	})
	return users
}

// Marker is a checkbox the scanner injected next to a post
type Marker struct {
	For      string
	Username string
	State    models.MarkerState
}

// Markers returns every injected marker
func (s *Snapshot) Markers() []Marker {
	var out []Marker
	s.doc.Find("." + MarkerClass).Each(func(_ int, m *goquery.Selection) {
		out = append(out, Marker{
			For:      m.AttrOr(AttrMarkerFor, ""),
			Username: m.AttrOr(AttrMarkerUser, ""),
			State:    models.MarkerState(m.AttrOr(AttrMarkerState, string(models.MarkerUnchecked))),
		})
	})
	return out
}

func attrInt(sel *goquery.Selection, name string, def int) int {
	v, ok := sel.Attr(name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "px"), 64)
	if err != nil {
		return def
	}
	return int(f)
}
