package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rightblock/internal/dom"
)

const probeFeed = `<html><body>
<nav><a href="/@me" data-rb-ref="1"><svg aria-label="Profile"><path/></svg></a></nav>
<main>
  <div class="post"><a href="/@alice/post/1">alice</a>
    <div><div role="button" data-rb-ref="3"><svg aria-label="More" viewBox="0 0 24 24"><path/></svg></div></div>
  </div>
  <div class="post"><a href="/@carol">carol</a>
    <div><div role="button" data-rb-ref="7"><svg aria-label="More" viewBox="0 0 12 12" data-rb-width="12"><path/></svg></div></div>
  </div>
</main></body></html>`

const probeProfile = `<html><body>
<main><div><div role="button" data-rb-ref="9"><svg aria-label="More" viewBox="0 0 24 24"><path/></svg></div></div></main>
</body></html>`

func parse(t *testing.T, html string) *dom.Snapshot {
	t.Helper()
	s, err := dom.Parse(html)
	require.NoError(t, err)
	return s
}

func TestProbe_Feed(t *testing.T) {
	res := probe(parse(t, probeFeed), "https://www.threads.net/", time.Unix(0, 0))
	require.Len(t, res.Results, 3)
	assert.True(t, res.OverallSuccess)
	assert.Equal(t, "found me", res.Results[1].Message)
	assert.Equal(t, "1 of 2 labelled buttons are usable", res.Results[2].Message)
}

func TestProbe_ProfileLooseMatch(t *testing.T) {
	res := probe(parse(t, probeProfile), "https://www.threads.net/@alice?rb_bg=true", time.Unix(0, 0))
	require.Len(t, res.Results, 3)
	assert.Equal(t, "profile menu trigger", res.Results[2].Name)
	assert.True(t, res.Results[2].Success)
	assert.Contains(t, res.Results[2].Message, "loose")
	assert.False(t, res.OverallSuccess, "no own username on this page")
}

func TestProbe_WrongHost(t *testing.T) {
	res := probe(parse(t, probeFeed), "https://example.com/", time.Unix(0, 0))
	assert.False(t, res.Results[0].Success)
	assert.False(t, res.OverallSuccess)
}
