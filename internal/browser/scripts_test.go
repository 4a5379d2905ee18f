package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", `"alice"`},
		{`quo"te`, `"quo\"te"`},
		{"line\nbreak", `"line\nbreak"`},
		{"</script>", `"\u003c/script\u003e"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, jsString(tt.in))
	}
}

func TestScript_FillsArguments(t *testing.T) {
	js := script(setMarkerStateScript, jsString("12"), jsString("checked"))
	assert.True(t, strings.HasSuffix(js, `("12", "checked")`), js)
	assert.NotContains(t, js, "%!")
}

func TestScripts_NoStrayVerbs(t *testing.T) {
	for name, s := range map[string]string{
		"observer": observerScript,
		"snapshot": snapshotScript,
		"dismiss":  dismissScript,
	} {
		assert.NotContains(t, s, "%s", name)
	}
}
