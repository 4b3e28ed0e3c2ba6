package session

import (
	"sync"

	"resumekit/api/internal/resume"
)

// PendingFile is an upload picked on one page and consumed on another.
type PendingFile struct {
	Name     string
	MimeType string
	Data     []byte
}

// Transfer hands a pending file and a pending draft from the page that
// produces them to the page that consumes them. It lives for one process
// only; a new process starts empty and the producing flow has to be redone.
type Transfer struct {
	mu    sync.Mutex
	file  *PendingFile
	draft *resume.Draft
}

func NewTransfer() *Transfer {
	return &Transfer{}
}

// SetFile replaces any pending file.
func (t *Transfer) SetFile(f PendingFile) {
	f.Data = append([]byte(nil), f.Data...)
	t.mu.Lock()
	t.file = &f
	t.mu.Unlock()
}

// TakeFile returns the pending file and clears the slot.
func (t *Transfer) TakeFile() (PendingFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return PendingFile{}, false
	}
	f := *t.file
	t.file = nil
	return f, true
}

// SetDraft replaces any pending draft.
func (t *Transfer) SetDraft(d resume.Draft) {
	t.mu.Lock()
	t.draft = &d
	t.mu.Unlock()
}

// TakeDraft returns the pending draft and clears the slot.
func (t *Transfer) TakeDraft() (resume.Draft, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.draft == nil {
		return resume.Draft{}, false
	}
	d := *t.draft
	t.draft = nil
	return d, true
}

// Pending reports which slots are filled without consuming them.
func (t *Transfer) Pending() (file, draft bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file != nil, t.draft != nil
}

func (t *Transfer) Reset() {
	t.mu.Lock()
	t.file = nil
	t.draft = nil
	t.mu.Unlock()
}
