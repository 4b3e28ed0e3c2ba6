package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Paper is a printable page size in inches.
type Paper struct {
	Name          string
	Width, Height float64
}

var (
	PaperLetter = Paper{Name: "letter", Width: 8.5, Height: 11}
	PaperA4     = Paper{Name: "a4", Width: 8.27, Height: 11.69}
)

// ParsePaper maps a config value to a paper size. Anything unknown is Letter.
func ParsePaper(name string) Paper {
	if strings.EqualFold(strings.TrimSpace(name), PaperA4.Name) {
		return PaperA4
	}
	return PaperLetter
}

// ChromePDF renders HTML to PDF with headless Chrome. ExecPath may be empty,
// in which case chromium or chromium-browser must be on PATH.
type ChromePDF struct {
	ExecPath string
	Timeout  time.Duration
	// Paper defaults to Letter.
	Paper Paper
}

func (c ChromePDF) lookup() (string, error) {
	if c.ExecPath != "" {
		if _, err := exec.LookPath(c.ExecPath); err != nil {
			return "", fmt.Errorf("%w: %s not found", ErrPDFDependencyMissing, c.ExecPath)
		}
		return c.ExecPath, nil
	}
	for _, name := range []string{"chromium-browser", "chromium", "google-chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
}

// Render loads html into a blank tab and prints it.
func (c ChromePDF) Render(ctx context.Context, html string) ([]byte, error) {
	execPath, err := c.lookup()
	if err != nil {
		return nil, err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	paper := c.Paper
	if paper.Width <= 0 || paper.Height <= 0 {
		paper = PaperLetter
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	var pdf []byte
	err = chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(paper.Width).
				WithPaperHeight(paper.Height).
				WithMarginTop(0.5).
				WithMarginBottom(0.5).
				WithMarginLeft(0.6).
				WithMarginRight(0.6).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf render: %w", err)
	}
	return pdf, nil
}

// sanitizeFilename keeps ASCII letters, digits, '-' and '_', turns spaces
// into '-' and caps the result at 50 bytes.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
		if b.Len() >= 50 {
			break
		}
	}
	if b.Len() == 0 {
		return "resume"
	}
	return b.String()
}
