// Package gitrepo keeps the revision history of each resume in its own git
// repository. Every stored version is a commit of resume.json on main.
package gitrepo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	mainBranch  = "main"
	payloadFile = "resume.json"
)

var (
	ErrNoHistory       = errors.New("no history for resume")
	ErrUnknownRevision = errors.New("unknown revision")
)

type Revision struct {
	Hash      string    `json:"hash"`
	FullHash  string    `json:"fullHash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// FieldChange describes a top-level resume field that differs between two
// revisions.
type FieldChange struct {
	Field  string `json:"field"`
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// CommitRevision records payload as the newest revision of the resume. When
// the payload equals the current head nothing is committed and changed is
// false.
func (s *Service) CommitRevision(resumeID string, payload map[string]any, author, message string) (rev Revision, changed bool, err error) {
	if !validID(resumeID) {
		return Revision{}, false, fmt.Errorf("invalid resume id %q", resumeID)
	}
	lock := s.resumeLock(resumeID)
	lock.Lock()
	defer lock.Unlock()

	content, err := marshalPayload(payload)
	if err != nil {
		return Revision{}, false, err
	}

	repo, fresh, err := s.openOrInit(resumeID)
	if err != nil {
		return Revision{}, false, err
	}
	if !fresh {
		head, err := headCommit(repo)
		switch {
		case errors.Is(err, ErrNoHistory):
			// An earlier first commit failed after init.
			fresh = true
		case err != nil:
			return Revision{}, false, err
		default:
			current, err := readPayload(head)
			if err == nil && bytes.Equal(current, content) {
				return toRevision(head), false, nil
			}
		}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, false, fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.repoPath(resumeID), payloadFile), content, 0o644); err != nil {
		return Revision{}, false, fmt.Errorf("write %s: %w", payloadFile, err)
	}
	if _, err := worktree.Add(payloadFile); err != nil {
		return Revision{}, false, fmt.Errorf("git add %s: %w", payloadFile, err)
	}
	if strings.TrimSpace(author) == "" {
		author = "resumekit"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@users.resumekit.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return Revision{}, false, fmt.Errorf("commit revision: %w", err)
	}
	if fresh {
		if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(mainBranch), hash)); err != nil {
			return Revision{}, false, fmt.Errorf("set main branch ref: %w", err)
		}
		if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
			return Revision{}, false, fmt.Errorf("set HEAD to main: %w", err)
		}
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj), true, nil
}

// History lists revisions newest first. limit <= 0 means all.
func (s *Service) History(resumeID string, limit int) ([]Revision, error) {
	lock := s.resumeLock(resumeID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(resumeID)
	if err != nil {
		return nil, err
	}
	head, err := headCommit(repo)
	if err != nil {
		return nil, err
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0)
	err = iter.ForEach(func(c *object.Commit) error {
		items = append(items, toRevision(c))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// PayloadAt returns the resume payload stored at a revision together with
// the fields that changed relative to its parent.
func (s *Service) PayloadAt(resumeID, hash string) (map[string]any, Revision, []FieldChange, error) {
	lock := s.resumeLock(resumeID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(resumeID)
	if err != nil {
		return nil, Revision{}, nil, err
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return nil, Revision{}, nil, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, Revision{}, nil, fmt.Errorf("%w: %s", ErrUnknownRevision, hash)
	}
	if err != nil {
		return nil, Revision{}, nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	after, err := decodeCommit(commitObj)
	if err != nil {
		return nil, Revision{}, nil, err
	}

	before := map[string]any{}
	if commitObj.NumParents() > 0 {
		parent, err := commitObj.Parent(0)
		if err != nil {
			return nil, Revision{}, nil, fmt.Errorf("read parent of %s: %w", hash, err)
		}
		if before, err = decodeCommit(parent); err != nil {
			return nil, Revision{}, nil, err
		}
	}
	return after, toRevision(commitObj), DiffFields(before, after), nil
}

// Delete drops the whole history of a resume.
func (s *Service) Delete(resumeID string) error {
	if !validID(resumeID) {
		return fmt.Errorf("invalid resume id %q", resumeID)
	}
	lock := s.resumeLock(resumeID)
	lock.Lock()
	defer lock.Unlock()
	if err := os.RemoveAll(s.repoPath(resumeID)); err != nil {
		return fmt.Errorf("remove history: %w", err)
	}
	return nil
}

// DiffFields compares two payloads key by key, sorted by field name.
func DiffFields(before, after map[string]any) []FieldChange {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}
	changes := make([]FieldChange, 0)
	for k := range keys {
		b, _ := json.Marshal(before[k])
		a, _ := json.Marshal(after[k])
		if bytes.Equal(a, b) {
			continue
		}
		changes = append(changes, FieldChange{Field: k, Before: before[k], After: after[k]})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

func (s *Service) open(resumeID string) (*git.Repository, error) {
	if !validID(resumeID) {
		return nil, ErrNoHistory
	}
	repo, err := git.PlainOpen(s.repoPath(resumeID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) openOrInit(resumeID string) (*git.Repository, bool, error) {
	path := s.repoPath(resumeID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, false, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, false, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, false, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, false, fmt.Errorf("init repo: %w", err)
	}
	return repo, true, nil
}

func (s *Service) repoPath(resumeID string) string {
	return filepath.Join(s.baseDir, resumeID)
}

func (s *Service) resumeLock(resumeID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[resumeID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[resumeID] = lock
	return lock
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", mainBranch, err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	return commitObj, nil
}

func readPayload(commitObj *object.Commit) ([]byte, error) {
	file, err := commitObj.File(payloadFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", payloadFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open payload reader: %w", err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func decodeCommit(commitObj *object.Commit) (map[string]any, error) {
	raw, err := readPayload(commitObj)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode revision payload: %w", err)
	}
	return payload, nil
}

// marshalPayload writes keys in sorted order so equal payloads produce equal
// bytes.
func marshalPayload(payload map[string]any) ([]byte, error) {
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return append(out, '\n'), nil
}

func toRevision(c *object.Commit) Revision {
	full := c.Hash.String()
	return Revision{
		Hash:      full[:7],
		FullHash:  full,
		Message:   strings.TrimSpace(c.Message),
		Author:    c.Author.Name,
		CreatedAt: c.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s: %v", ErrUnknownRevision, hash, err)
	}
	return *resolved, nil
}
