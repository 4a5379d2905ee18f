package dom

import "strings"

// Intent is what a menu item or button label offers to do
type Intent int

const (
	IntentNone Intent = iota
	IntentBlock
	IntentUnblock
)

func (i Intent) String() string {
	switch i {
	case IntentBlock:
		return "block"
	case IntentUnblock:
		return "unblock"
	default:
		return "none"
	}
}

// Phrases is one language's block vocabulary. Matching is case-sensitive.
type Phrases struct {
	Lang    string
	Unblock string
	Block   string
	// Exclude disqualifies a Block match, e.g. the "Un" of "Unblock"
	Exclude string
}

// Vocabulary lists the supported host UI languages
var Vocabulary = []Phrases{
	{Lang: "zh-TW", Unblock: "解除封鎖", Block: "封鎖", Exclude: "解除"},
	{Lang: "en", Unblock: "Unblock", Block: "Block", Exclude: "Un"},
}

// RestrictionPhrases appear in the host's rate-limit dialogs
var RestrictionPhrases = []string{
	"稍後再試",
	"Try again later",
	"為了保護",
	"protect our community",
	"受到限制",
	"restrict certain activity",
}

// Classify maps a label to an Intent. Unblock wins over block in every language.
func Classify(label string) Intent {
	for _, p := range Vocabulary {
		if strings.Contains(label, p.Unblock) {
			return IntentUnblock
		}
	}
	for _, p := range Vocabulary {
		if strings.Contains(label, p.Block) && !strings.Contains(label, p.Exclude) {
			return IntentBlock
		}
	}
	return IntentNone
}

// MentionsBlock is the looser test used on confirm buttons
func MentionsBlock(label string) bool {
	for _, p := range Vocabulary {
		if strings.Contains(label, p.Block) {
			return true
		}
	}
	return false
}

// IsRestriction reports whether text carries a rate-limit message
func IsRestriction(text string) bool {
	for _, p := range RestrictionPhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
