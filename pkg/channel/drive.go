package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/ingest"
	"github.com/mpislabs/draftflow/pkg/security"
)

// Google Workspace types and the plain format each is exported as.
var exportFormats = map[string]string{
	"application/vnd.google-apps.document":     "text/plain",
	"application/vnd.google-apps.presentation": "text/plain",
	"application/vnd.google-apps.spreadsheet":  "text/csv",
}

var fileIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/d/([a-zA-Z0-9_-]{10,})`),
	regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]{10,})`),
	regexp.MustCompile(`^([a-zA-Z0-9_-]{10,})$`),
}

// FileID extracts a Drive file id from a sharing link or a bare id.
func FileID(ref string) string {
	ref = strings.TrimSpace(ref)
	for _, p := range fileIDPatterns {
		if m := p.FindStringSubmatch(ref); m != nil {
			return m[1]
		}
	}
	return ""
}

// Drive reads documents from Google Drive.
type Drive struct {
	svc *drive.Service
}

// NewDrive creates a Drive adapter. Pass option.WithCredentialsFile for a
// service account.
func NewDrive(ctx context.Context, opts ...option.ClientOption) (*Drive, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Drive{svc: svc}, nil
}

// Channel implements ingest.Adapter.
func (d *Drive) Channel() core.Channel { return core.ChannelDocument }

// Fetch implements ingest.Adapter.
func (d *Drive) Fetch(ctx context.Context, ref string) (string, error) {
	id := FileID(ref)
	if id == "" {
		return "", ingest.UnsupportedFormat(ref, "not a drive file reference", nil)
	}

	meta, err := d.svc.Files.Get(id).Fields("id, name, mimeType").Context(ctx).Do()
	if err != nil {
		return "", driveError(ref, "failed to read file metadata", err)
	}

	var resp *http.Response
	switch export, ok := exportFormats[meta.MimeType]; {
	case ok:
		resp, err = d.svc.Files.Export(id, export).Context(ctx).Download()
	case strings.HasPrefix(meta.MimeType, "text/"), meta.MimeType == "application/json":
		resp, err = d.svc.Files.Get(id).Context(ctx).Download()
	default:
		return "", ingest.UnsupportedFormat(ref, "mime type "+meta.MimeType, nil)
	}
	if err != nil {
		return "", driveError(ref, "failed to download file", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, security.MaxSourceTextSize))
	if err != nil {
		return "", ingest.TransportError(ref, "failed to read file", err)
	}
	return string(body), nil
}

func driveError(ref, msg string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg = fmt.Sprintf("%s: status %d", msg, gerr.Code)
	}
	return ingest.TransportError(ref, msg, err)
}
