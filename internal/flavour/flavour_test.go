package flavour

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCandidates(t *testing.T) {
	r := NewResolver("article")
	require.Equal(t, []string{
		"cooking/indian/madras.html",
		"cooking/indian/article.html",
		"cooking/article.html",
		"article.html",
	}, r.Candidates("cooking/indian/madras", "html"))
}

func TestCandidates_TopLevel(t *testing.T) {
	r := NewResolver("")
	require.Equal(t, []string{"about.rss", "article.rss"}, r.Candidates("about", "rss"))
}

func TestCandidates_CustomDefault(t *testing.T) {
	r := NewResolver("story")
	got := r.Candidates("/news/today/", "html")
	require.Equal(t, []string{"news/today.html", "news/story.html", "story.html"}, got)
}
