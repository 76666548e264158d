package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/ingest"
	"github.com/mpislabs/draftflow/pkg/security"
)

var videoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:https?://)?(?:www\.|m\.)?youtube\.com/watch\?(?:.*&)?v=([a-zA-Z0-9_-]{10,12})`),
	regexp.MustCompile(`(?:https?://)?(?:www\.)?youtu\.be/([a-zA-Z0-9_-]{10,12})`),
	regexp.MustCompile(`(?:https?://)?(?:www\.)?youtube\.com/(?:shorts|embed|v|live)/([a-zA-Z0-9_-]{10,12})`),
}

// VideoID extracts the video id from a YouTube link, or returns "".
func VideoID(link string) string {
	link = strings.TrimSpace(link)
	for _, p := range videoPatterns {
		if m := p.FindStringSubmatch(link); m != nil {
			return m[1]
		}
	}
	return ""
}

// ParseLinks reads one link per line, skipping blanks and # comments, and
// returns the deduplicated video links in input order.
func ParseLinks(content string) []string {
	seen := make(map[string]bool)
	var links []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id := VideoID(line)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		links = append(links, line)
	}
	return links
}

// Transcript fetches video transcripts from a transcript service.
//
// The service answers GET {base}/transcripts/{videoID}?lang=xx with
// {"segments":[{"text":"...","start":0.0}]}.
type Transcript struct {
	baseURL  string
	language string
	client   *http.Client
}

// NewTranscript creates a transcript adapter for the service at baseURL.
func NewTranscript(baseURL, language string, client *http.Client) *Transcript {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Transcript{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		client:   client,
	}
}

// Channel implements ingest.Adapter.
func (t *Transcript) Channel() core.Channel { return core.ChannelTranscript }

type transcriptResponse struct {
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
	} `json:"segments"`
}

// Fetch implements ingest.Adapter.
func (t *Transcript) Fetch(ctx context.Context, ref string) (string, error) {
	id := VideoID(ref)
	if id == "" {
		return "", ingest.UnsupportedFormat(ref, "not a video link", nil)
	}

	endpoint := t.baseURL + "/transcripts/" + url.PathEscape(id)
	if t.language != "" {
		endpoint += "?lang=" + url.QueryEscape(t.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", ingest.TransportError(ref, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", ingest.TransportError(ref, "transcript request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ingest.TransportError(ref, "no transcript available", nil)
	case resp.StatusCode != http.StatusOK:
		return "", ingest.TransportError(ref, fmt.Sprintf("HTTP status %d", resp.StatusCode), nil)
	}

	var body transcriptResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, security.MaxSourceTextSize)).Decode(&body); err != nil {
		return "", ingest.UnsupportedFormat(ref, "malformed transcript", err)
	}

	parts := make([]string, 0, len(body.Segments))
	for _, s := range body.Segments {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
