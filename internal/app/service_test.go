package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"resumekit/api/internal/authpw"
	"resumekit/api/internal/config"
	"resumekit/api/internal/export"
	"resumekit/api/internal/gitrepo"
	"resumekit/api/internal/plan"
	"resumekit/api/internal/resume"
	"resumekit/api/internal/search"
	"resumekit/api/internal/store"
)

// fakeStore keeps accounts, records and sessions in memory.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]store.Account
	resets   map[string]string
	records  []store.Record
	refresh  map[string]string
	revoked  map[string]bool
	clock    time.Time
	pingFn   func(context.Context) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]store.Account),
		resets:   make(map[string]string),
		refresh:  make(map[string]string),
		revoked:  make(map[string]bool),
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) addAccount(id, name, email string, accountPlan plan.Plan) store.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc := store.Account{ID: id, DisplayName: name, Email: email, Plan: string(accountPlan), IsEmailVerified: true}
	f.accounts[id] = acc
	return acc
}

func (f *fakeStore) GetAccountByEmail(_ context.Context, email string) (store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.accounts {
		if strings.EqualFold(acc.Email, email) {
			return acc, nil
		}
	}
	return store.Account{}, sql.ErrNoRows
}

func (f *fakeStore) GetAccountByID(_ context.Context, id string) (store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return store.Account{}, sql.ErrNoRows
	}
	return acc, nil
}

func (f *fakeStore) CreateAccount(_ context.Context, acc store.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[acc.ID] = acc
	return nil
}

func (f *fakeStore) UpdateAccountVerificationToken(_ context.Context, accountID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc := f.accounts[accountID]
	acc.VerificationToken = token
	f.accounts[accountID] = acc
	return nil
}

func (f *fakeStore) VerifyAccountEmail(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, acc := range f.accounts {
		if token != "" && acc.VerificationToken == token {
			acc.IsEmailVerified = true
			acc.VerificationToken = ""
			f.accounts[id] = acc
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpdateAccountPassword(_ context.Context, accountID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc := f.accounts[accountID]
	acc.PasswordHash = passwordHash
	f.accounts[accountID] = acc
	return nil
}

func (f *fakeStore) SetAccountPlan(_ context.Context, accountID, accountPlan string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[accountID]
	if !ok {
		return sql.ErrNoRows
	}
	acc.Plan = accountPlan
	f.accounts[accountID] = acc
	return nil
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, accountID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = accountID
	return nil
}

func (f *fakeStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return id, nil
}

func (f *fakeStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resets, token)
	return nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, accountID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = accountID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.refresh[tokenHash]
	if !ok {
		return "", sql.ErrNoRows
	}
	return id, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) ListRecords(_ context.Context, collection, ownerID string, filter map[string]string) ([]store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Record, 0)
	for _, rec := range f.records {
		if rec.Collection != collection || rec.OwnerID != ownerID {
			continue
		}
		matched := true
		for key, want := range filter {
			if fmt.Sprint(rec.Payload[key]) != want {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRecord(_ context.Context, collection, ownerID, id string) (store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.Collection == collection && rec.OwnerID == ownerID && rec.ID == id {
			return rec, nil
		}
	}
	return store.Record{}, sql.ErrNoRows
}

func (f *fakeStore) InsertRecord(_ context.Context, rec store.Record) (store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(time.Second)
	rec.CreatedAt = f.clock
	rec.UpdatedAt = f.clock
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeStore) UpdateRecord(_ context.Context, collection, ownerID, id string, patch map[string]any) (store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, rec := range f.records {
		if rec.Collection == collection && rec.OwnerID == ownerID && rec.ID == id {
			merged := make(map[string]any, len(rec.Payload)+len(patch))
			for k, v := range rec.Payload {
				merged[k] = v
			}
			for k, v := range patch {
				merged[k] = v
			}
			f.clock = f.clock.Add(time.Second)
			rec.Payload = merged
			rec.UpdatedAt = f.clock
			f.records[i] = rec
			return rec, nil
		}
	}
	return store.Record{}, sql.ErrNoRows
}

func (f *fakeStore) DeleteRecord(_ context.Context, collection, ownerID, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, rec := range f.records {
		if rec.Collection == collection && rec.OwnerID == ownerID && rec.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) FieldTakenByOther(_ context.Context, collection, field, value, ownerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.Collection != collection || rec.OwnerID == ownerID {
			continue
		}
		if got, ok := rec.Payload[field].(string); ok && strings.EqualFold(got, strings.TrimSpace(value)) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed []search.ResumeDoc
	deleted []string
	queries []search.Query
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return search.Response{Results: []search.Result{{ID: "r1", Title: "Hit"}}, Total: 1, Query: q.Text}
}

func (f *fakeSearch) IndexResume(doc search.ResumeDoc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, doc)
}

func (f *fakeSearch) DeleteResume(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

type fakeMailer struct {
	configured bool
	sent       []string
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }
func (f *fakeMailer) SendVerificationEmail(to, _, link string) error {
	f.sent = append(f.sent, "verify:"+to+":"+link)
	return nil
}
func (f *fakeMailer) SendPasswordResetEmail(to, _, link string) error {
	f.sent = append(f.sent, "reset:"+to+":"+link)
	return nil
}
func (f *fakeMailer) SendPlanReceipt(to, _, accountPlan string) error {
	f.sent = append(f.sent, "receipt:"+to+":"+accountPlan)
	return nil
}

type fakeExporter struct {
	formats []export.Format
}

func (f *fakeExporter) Export(_ context.Context, res resume.Resume, format export.Format) (*export.Result, error) {
	f.formats = append(f.formats, format)
	return &export.Result{Data: []byte("%PDF-" + res.Title), Filename: "cv." + string(format), MimeType: "application/pdf"}, nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
			PublicURL:  "http://app.test",
		},
		store:    fs,
		sessions: fs,
		auth:     authpw.NewService(fs).WithCost(bcrypt.MinCost),
		logger:   log.New(io.Discard, "", 0),
	}
}

func sessionFor(t *testing.T, svc *Service, acc store.Account) Session {
	t.Helper()
	current, err := svc.issueSession(context.Background(), acc)
	if err != nil {
		t.Fatalf("issueSession: %v", err)
	}
	return current
}

func requireCode(t *testing.T, err error, status int, code string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError %s, got %v", code, err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("expected %d %s, got %d %s", status, code, domainErr.Status, domainErr.Code)
	}
}

func TestCreateRecordAssignsIdentityAndOwner(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	history := gitrepo.New(t.TempDir())
	index := &fakeSearch{}
	svc.history = history
	svc.search = index
	ada := sessionFor(t, svc, fs.addAccount("acc-1", "Ada", "ada@example.com", plan.Free))

	created, err := svc.CreateRecord(context.Background(), ada, resume.CollectionName, map[string]any{
		"id":      "client-chosen",
		"_id":     "also-ignored",
		"ownerId": "someone-else",
		"title":   "Backend engineer",
		"skills":  []any{"Go"},
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	id, _ := created["id"].(string)
	if id == "" || id == "client-chosen" {
		t.Fatalf("expected server id, got %v", created["id"])
	}
	if created["ownerId"] != "acc-1" || created["template"] != resume.TemplateClassic {
		t.Fatalf("unexpected record %+v", created)
	}
	if _, ok := created["_id"]; ok {
		t.Fatalf("identity alias leaked into payload: %+v", created)
	}

	revisions, err := history.History(id, 0)
	if err != nil || len(revisions) != 1 || revisions[0].Author != "Ada" {
		t.Fatalf("expected one revision by Ada, got %+v err=%v", revisions, err)
	}
	if len(index.indexed) != 1 || index.indexed[0].ID != id || index.indexed[0].OwnerID != "acc-1" {
		t.Fatalf("expected resume to be indexed, got %+v", index.indexed)
	}
}

func TestCreateResumeValidation(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ada := sessionFor(t, svc, fs.addAccount("acc-1", "Ada", "ada@example.com", plan.Free))

	_, err := svc.CreateRecord(context.Background(), ada, resume.CollectionName, map[string]any{"summary": "no title"})
	requireCode(t, err, http.StatusUnprocessableEntity, CodeValidation)

	_, err = svc.CreateRecord(context.Background(), ada, resume.CollectionName, map[string]any{"title": "CV", "template": "fancy"})
	requireCode(t, err, http.StatusUnprocessableEntity, CodeValidation)

	_, err = svc.CreateRecord(context.Background(), ada, "invoices", map[string]any{"title": "x"})
	requireCode(t, err, http.StatusNotFound, CodeNotFound)
}

func TestFreePlanLimitsAndCheckout(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	mail := &fakeMailer{configured: true}
	svc.mailer = mail
	ctx := context.Background()
	ada := sessionFor(t, svc, fs.addAccount("acc-1", "Ada", "ada@example.com", plan.Free))

	if _, err := svc.CreateRecord(ctx, ada, usersCollection, map[string]any{"email": "ada@example.com", "plan": "pro"}); err != nil {
		t.Fatalf("create user record: %v", err)
	}
	_, err := svc.CreateRecord(ctx, ada, resume.CollectionName, map[string]any{"title": "Modern CV", "template": resume.TemplateModern})
	requireCode(t, err, http.StatusForbidden, CodePlanRequired)

	for i := 0; i < plan.FreeResumeLimit; i++ {
		if _, err := svc.CreateRecord(ctx, ada, resume.CollectionName, map[string]any{"title": fmt.Sprintf("CV %d", i)}); err != nil {
			t.Fatalf("create resume %d: %v", i, err)
		}
	}
	_, err = svc.CreateRecord(ctx, ada, resume.CollectionName, map[string]any{"title": "One too many"})
	requireCode(t, err, http.StatusForbidden, CodePlanLimit)

	payload, err := svc.Checkout(ctx, ada, "")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if payload["plan"] != "pro" {
		t.Fatalf("unexpected checkout payload %+v", payload)
	}
	users, _ := svc.ListRecords(ctx, ada, usersCollection, nil)
	if len(users) != 1 || users[0]["plan"] != "pro" {
		t.Fatalf("users record should mirror the plan: %+v", users)
	}
	if len(mail.sent) != 1 || mail.sent[0] != "receipt:ada@example.com:pro" {
		t.Fatalf("expected a receipt, got %v", mail.sent)
	}

	upgraded, err := svc.SessionFromToken(ctx, ada.Token)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if upgraded.Plan != plan.Pro {
		t.Fatalf("expected pro session, got %q", upgraded.Plan)
	}
	if _, err := svc.CreateRecord(ctx, upgraded, resume.CollectionName, map[string]any{"title": "Modern CV", "template": resume.TemplateModern}); err != nil {
		t.Fatalf("pro account should create premium resume: %v", err)
	}

	_, err = svc.Checkout(ctx, upgraded, "platinum")
	requireCode(t, err, http.StatusUnprocessableEntity, CodeValidation)
}

func TestDuplicateEmailAcrossOwners(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()
	ada := sessionFor(t, svc, fs.addAccount("acc-1", "Ada", "ada@example.com", plan.Free))
	bob := sessionFor(t, svc, fs.addAccount("acc-2", "Bob", "bob@example.com", plan.Free))

	own, err := svc.CreateRecord(ctx, ada, usersCollection, map[string]any{"email": "ada@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = svc.CreateRecord(ctx, bob, usersCollection, map[string]any{"email": "ADA@example.com"})
	requireCode(t, err, http.StatusConflict, CodeDuplicateEmail)

	bobRecord, err := svc.CreateRecord(ctx, bob, usersCollection, map[string]any{"email": "bob@example.com"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	_, err = svc.UpdateRecord(ctx, bob, usersCollection, bobRecord["id"].(string), map[string]any{"email": "ada@example.com"})
	requireCode(t, err, http.StatusConflict, CodeDuplicateEmail)

	if _, err := svc.UpdateRecord(ctx, ada, usersCollection, own["id"].(string), map[string]any{"email": "ada@example.com", "name": "Ada L."}); err != nil {
		t.Fatalf("owner may keep its own email: %v", err)
	}
}

func TestMissingRecordsReportRecordNotFound(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()
	ada := sessionFor(t, svc, fs.addAccount("acc-1", "Ada", "ada@example.com", plan.Free))

	_, err := svc.UpdateRecord(ctx, ada, resume.CollectionName, "missing", map[string]any{"title": "x"})
	requireCode(t, err, http.StatusNotFound, CodeRecordNotFound)

	err = svc.DeleteRecord(ctx, ada, resume.CollectionName, "missing")
	requireCode(t, err, http.StatusNotFound, CodeRecordNotFound)

	_, err = svc.History(ctx, ada, "missing", 0)
	requireCode(t, err, http.StatusNotFound, CodeRecordNotFound)
}

func TestRecordsAreScopedToOwner(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()
	ada := sessionFor(t, svc, fs.addAccount("acc-1", "Ada", "ada@example.com", plan.Free))
	bob := sessionFor(t, svc, fs.addAccount("acc-2", "Bob", "bob@example.com", plan.Free))

	created, err := svc.CreateRecord(ctx, ada, resume.CollectionName, map[string]any{"title": "Ada CV"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created["id"].(string)

	if records, _ := svc.ListRecords(ctx, bob, resume.CollectionName, nil); len(records) != 0 {
		t.Fatalf("bob should not see ada's resumes: %+v", records)
	}
	_, err = svc.UpdateRecord(ctx, bob, resume.CollectionName, id, map[string]any{"title": "hijack"})
	requireCode(t, err, http.StatusNotFound, CodeRecordNotFound)
}

func TestListRecordsFilters(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()
	ada := sessionFor(t, svc, fs.addAccount("acc-1", "Ada", "ada@example.com", plan.Pro))

	first, _ := svc.CreateRecord(ctx, ada, resume.CollectionName, map[string]any{"title": "A", "template": "modern"})
	_, _ = svc.CreateRecord(ctx, ada, resume.CollectionName, map[string]any{"title": "B", "template": "classic"})
	_, _ = svc.CreateRecord(ctx, ada, resume.CollectionName, map[string]any{"title": "C", "template": "modern"})

	all, err := svc.ListRecords(ctx, ada, resume.CollectionName, nil)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 records, got %d err=%v", len(all), err)
	}
	if all[0]["title"] != "A" || all[2]["title"] != "C" {
		t.Fatalf("records should be in creation order: %+v", all)
	}

	modern, _ := svc.ListRecords(ctx, ada, resume.CollectionName, map[string]string{"template": "modern"})
	if len(modern) != 2 {
		t.Fatalf("expected 2 modern resumes, got %d", len(modern))
	}

	byID, _ := svc.ListRecords(ctx, ada, resume.CollectionName, map[string]string{"id": first["id"].(string)})
	if len(byID) != 1 || byID[0]["title"] != "A" {
		t.Fatalf("id filter failed: %+v", byID)
	}
	none, _ := svc.ListRecords(ctx, ada, resume.CollectionName, map[string]string{"id": first["id"].(string), "template": "classic"})
	if len(none) != 0 {
		t.Fatalf("conflicting filters should match nothing: %+v", none)
	}
}

func TestDeleteResumeDropsHistoryAndIndex(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	history := gitrepo.New(t.TempDir())
	index := &fakeSearch{}
	svc.history = history
	svc.search = index
	ctx := context.Background()
	ada := sessionFor(t, svc, fs.addAccount("acc-1", "Ada", "ada@example.com", plan.Free))

	created, _ := svc.CreateRecord(ctx, ada, resume.CollectionName, map[string]any{"title": "A"})
	id := created["id"].(string)
	if _, err := svc.UpdateRecord(ctx, ada, resume.CollectionName, id, map[string]any{"title": "B"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	payload, err := svc.History(ctx, ada, id, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	revisions := payload["revisions"].([]gitrepo.Revision)
	if len(revisions) != 2 || revisions[0].Message != "Update resume" {
		t.Fatalf("unexpected revisions %+v", revisions)
	}

	rev, err := svc.Revision(ctx, ada, id, revisions[1].FullHash)
	if err != nil {
		t.Fatalf("Revision: %v", err)
	}
	if rev["payload"].(map[string]any)["title"] != "A" {
		t.Fatalf("expected first revision payload, got %+v", rev["payload"])
	}
	_, err = svc.Revision(ctx, ada, id, "deadbeef")
	requireCode(t, err, http.StatusNotFound, "REVISION_NOT_FOUND")

	if err := svc.DeleteRecord(ctx, ada, resume.CollectionName, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := history.History(id, 0); !errors.Is(err, gitrepo.ErrNoHistory) {
		t.Fatalf("history should be gone, got %v", err)
	}
	if len(index.deleted) != 1 || index.deleted[0] != id {
		t.Fatalf("expected index removal, got %v", index.deleted)
	}
}

func TestExportGatesFormatsByPlan(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	exporter := &fakeExporter{}
	svc.exporter = exporter
	ctx := context.Background()
	ada := sessionFor(t, svc, fs.addAccount("acc-1", "Ada", "ada@example.com", plan.Free))
	created, _ := svc.CreateRecord(ctx, ada, resume.CollectionName, map[string]any{"title": "CV"})
	id := created["id"].(string)

	result, err := svc.Export(ctx, ada, id, "pdf")
	if err != nil {
		t.Fatalf("Export pdf: %v", err)
	}
	if string(result.Data) != "%PDF-CV" {
		t.Fatalf("unexpected export data %q", result.Data)
	}

	_, err = svc.Export(ctx, ada, id, "docx")
	requireCode(t, err, http.StatusForbidden, CodePlanRequired)
	_, err = svc.Export(ctx, ada, id, "rtf")
	requireCode(t, err, http.StatusUnprocessableEntity, CodeValidation)
	_, err = svc.Export(ctx, ada, "missing", "pdf")
	requireCode(t, err, http.StatusNotFound, CodeRecordNotFound)

	svc.exporter = nil
	_, err = svc.Export(ctx, ada, id, "pdf")
	requireCode(t, err, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE")
}

func TestImportRequiresPro(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ada := sessionFor(t, svc, fs.addAccount("acc-1", "Ada", "ada@example.com", plan.Free))

	_, err := svc.Import(context.Background(), ada, "cv.txt", "text/plain", strings.NewReader("Ada"))
	requireCode(t, err, http.StatusForbidden, CodePlanRequired)
}

func TestSearchIsScopedToCaller(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	index := &fakeSearch{}
	svc.search = index
	ada := sessionFor(t, svc, fs.addAccount("acc-1", "Ada", "ada@example.com", plan.Free))

	resp := svc.Search(context.Background(), ada, search.Query{Text: "go", OwnerID: "acc-2"})
	if resp.Total != 1 || len(index.queries) != 1 || index.queries[0].OwnerID != "acc-1" {
		t.Fatalf("search must run as the caller: %+v %+v", resp, index.queries)
	}

	svc.search = nil
	empty := svc.Search(context.Background(), ada, search.Query{Text: "go"})
	if empty.Results == nil || empty.Total != 0 {
		t.Fatalf("expected empty results without an index, got %+v", empty)
	}
}

func TestSignUpSendsVerificationEmail(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	mail := &fakeMailer{configured: true}
	svc.mailer = mail

	result, err := svc.SignUp(context.Background(), "grace@example.com", "correct-horse", "Grace")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if !result.EmailSent || len(mail.sent) != 1 {
		t.Fatalf("expected a verification email, got %+v %v", result, mail.sent)
	}
	want := "verify:grace@example.com:http://app.test/verify-email?token=" + result.VerificationToken
	if mail.sent[0] != want {
		t.Fatalf("unexpected email %q", mail.sent[0])
	}

	_, err = svc.SignUp(context.Background(), "grace@example.com", "correct-horse", "Grace")
	requireCode(t, err, http.StatusConflict, "EMAIL_EXISTS")
	_, err = svc.SignUp(context.Background(), "x@example.com", "short", "X")
	requireCode(t, err, http.StatusUnprocessableEntity, CodeValidation)
}
