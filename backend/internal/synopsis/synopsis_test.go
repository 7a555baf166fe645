package synopsis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegraph/backend/pkg/errors"
)

const article = `<html><body>
<p>Alien est un film de science-fiction<sup class="reference">[1]</sup> réalisé par Ridley Scott.</p>
<p class="mw-empty-elt"></p>
<div class="mw-heading mw-heading2"><h2 id="Synopsis">Synopsis</h2><span class="mw-editsection">[modifier]</span></div>
<p>Le   cargo Nostromo
reçoit un signal.</p>
<h3>Découverte</h3>
<p>L'équipage explore un vaisseau échoué.</p>
<h2>Fiche technique</h2>
<p>Durée : 117 minutes</p>
</body></html>`

func TestExtract_SectionWithSubsections(t *testing.T) {
	text, err := Extract(strings.NewReader(article), "synopsis")
	require.NoError(t, err)
	assert.Equal(t, "Le cargo Nostromo reçoit un signal.\nL'équipage explore un vaisseau échoué.", text)
	assert.NotContains(t, text, "117 minutes")
}

func TestExtract_FallsBackToLead(t *testing.T) {
	text, err := Extract(strings.NewReader(article), "Plot")
	require.NoError(t, err)
	assert.Equal(t, "Alien est un film de science-fiction réalisé par Ridley Scott.", text)
}

func TestExtract_NothingFound(t *testing.T) {
	_, err := Extract(strings.NewReader("<html><body><h2>Synopsis</h2></body></html>"), "Synopsis")
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeNotFound))
}

func TestFetcher_Fetch(t *testing.T) {
	var gotPath, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAgent = r.Header.Get("User-Agent")
		if strings.HasSuffix(r.URL.Path, "Missing_Film") {
			http.NotFound(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, "Broken") {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(article))
	}))
	defer srv.Close()

	f := NewFetcher(WithBaseURL(srv.URL+"/"), WithUserAgent("test-agent"), WithClient(srv.Client()), WithRateLimit(0))
	ctx := context.Background()

	text, err := f.Fetch(ctx, "Alien (film)")
	require.NoError(t, err)
	assert.Contains(t, text, "Nostromo")
	assert.Equal(t, "/api/rest_v1/page/html/Alien_%28film%29", gotPath)
	assert.Equal(t, "test-agent", gotAgent)

	_, err = f.Fetch(ctx, "Missing Film")
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeNotFound))

	_, err = f.Fetch(ctx, "Broken")
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeUpstream))

	_, err = f.Fetch(ctx, "  ")
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeInput))
}
