package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"resumekit/api/internal/blob"
	"resumekit/api/internal/resume"
)

// MaxUploadBytes bounds a single uploaded resume file.
const MaxUploadBytes = 10 << 20

var (
	ErrTooLarge = errors.New("upload too large")
	ErrEmpty    = errors.New("upload is empty")
	ErrNoText   = errors.New("no text could be extracted from upload")
)

// Result is the outcome of an import: the parsed draft plus where the
// original file was kept.
type Result struct {
	Draft    resume.Draft `json:"draft"`
	Key      string       `json:"key,omitempty"`
	MimeType string       `json:"mimeType"`
	Text     string       `json:"text"`
}

type Service struct {
	blobs  blob.Store
	logger *log.Logger
}

// NewService builds an importer. blobs may be nil, in which case originals
// are not retained.
func NewService(blobs blob.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{blobs: blobs, logger: logger}
}

// Import extracts text from an uploaded resume, parses it into a draft and
// stores the original upload under the owner's prefix.
func (s *Service) Import(ctx context.Context, ownerID, filename, declaredMime string, r io.Reader) (Result, error) {
	data, err := readAllLimited(r, MaxUploadBytes)
	if err != nil {
		return Result{}, err
	}
	if len(data) == 0 {
		return Result{}, ErrEmpty
	}
	mimeType := DetectMimeType(filename, declaredMime)
	text, err := ExtractText(mimeType, data)
	if err != nil {
		return Result{}, err
	}
	text = normalizeText(text)
	if text == "" {
		return Result{}, ErrNoText
	}

	result := Result{
		Draft:    ParseDraft(text),
		MimeType: mimeType,
		Text:     text,
	}
	if s.blobs == nil {
		return result, nil
	}
	key := blob.UploadKey(ownerID, filename)
	_, err = s.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), blob.PutOptions{
		ContentType: mimeType,
		Metadata: map[string]string{
			"owner":    ownerID,
			"filename": filename,
		},
	})
	if err != nil {
		// The parsed draft is still useful without the stored original.
		s.logger.Printf("importer: store original %s: %v", key, err)
		return result, nil
	}
	result.Key = key
	return result, nil
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\u00a0", " ")
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Describe renders a short human summary of an import for logs and CLI output.
func (r Result) Describe() string {
	return fmt.Sprintf("%s: %d experience, %d education, %d skills",
		r.Draft.Title, len(r.Draft.Experience), len(r.Draft.Education), len(r.Draft.Skills))
}
