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
	"time"

	"resumekit/api/internal/auth"
	"resumekit/api/internal/authpw"
	"resumekit/api/internal/collection"
	"resumekit/api/internal/config"
	"resumekit/api/internal/export"
	"resumekit/api/internal/gitrepo"
	"resumekit/api/internal/importer"
	"resumekit/api/internal/plan"
	"resumekit/api/internal/resume"
	"resumekit/api/internal/search"
	"resumekit/api/internal/store"
	"resumekit/api/internal/util"
)

const usersCollection = "users"

var allowedCollections = map[string]struct{}{
	usersCollection:       {},
	resume.CollectionName: {},
}

// Fields the server owns; clients may filter on them but never write them.
var serverManagedFields = map[string]struct{}{
	"ownerId":   {},
	"createdAt": {},
	"updatedAt": {},
}

type Session struct {
	Token        string
	RefreshToken string
	AccountID    string
	UserName     string
	Email        string
	Plan         plan.Plan
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	authpw.AccountStore
	GetAccountByID(context.Context, string) (store.Account, error)
	SetAccountPlan(context.Context, string, string) error
	ListRecords(context.Context, string, string, map[string]string) ([]store.Record, error)
	GetRecord(context.Context, string, string, string) (store.Record, error)
	InsertRecord(context.Context, store.Record) (store.Record, error)
	UpdateRecord(context.Context, string, string, string, map[string]any) (store.Record, error)
	DeleteRecord(context.Context, string, string, string) (bool, error)
	FieldTakenByOther(context.Context, string, string, string, string) (bool, error)
	Ping(ctx context.Context) error
}

// sessionStore holds refresh sessions and the access token denylist. Both
// the Postgres and the Redis store satisfy it.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type historyStore interface {
	CommitRevision(string, map[string]any, string, string) (gitrepo.Revision, bool, error)
	History(string, int) ([]gitrepo.Revision, error)
	PayloadAt(string, string) (map[string]any, gitrepo.Revision, []gitrepo.FieldChange, error)
	Delete(string) error
}

type searchIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexResume(search.ResumeDoc)
	DeleteResume(string)
}

type resumeExporter interface {
	Export(context.Context, resume.Resume, export.Format) (*export.Result, error)
}

type uploadImporter interface {
	Import(context.Context, string, string, string, io.Reader) (importer.Result, error)
}

type mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
	SendPlanReceipt(to, userName, plan string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	auth     *authpw.Service
	history  historyStore
	search   searchIndex
	exporter resumeExporter
	importer uploadImporter
	mailer   mailer
	logger   *log.Logger
}

type Option func(*Service)

// WithSessionStore moves refresh sessions and revoked tokens out of Postgres.
func WithSessionStore(sessions sessionStore) Option {
	return func(s *Service) { s.sessions = sessions }
}

func WithHistory(history historyStore) Option {
	return func(s *Service) { s.history = history }
}

func WithSearch(index searchIndex) Option {
	return func(s *Service) { s.search = index }
}

func WithExporter(exporter resumeExporter) Option {
	return func(s *Service) { s.exporter = exporter }
}

func WithImporter(imp uploadImporter) Option {
	return func(s *Service) { s.importer = imp }
}

func WithMailer(m mailer) Option {
	return func(s *Service) { s.mailer = m }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(cfg config.Config, dataStore *store.PostgresStore, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		logger: log.Default(),
	}
	if dataStore != nil {
		s.store = dataStore
		s.sessions = dataStore
		s.auth = authpw.NewService(dataStore)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Auth

type SignUpResult struct {
	AccountID         string
	VerificationToken string
	EmailSent         bool
}

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (SignUpResult, error) {
	if s.auth == nil {
		return SignUpResult{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	resp, err := s.auth.SignUp(ctx, authpw.SignUpRequest{Email: email, Password: password, DisplayName: displayName})
	switch {
	case errors.Is(err, authpw.ErrEmailTaken):
		return SignUpResult{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrMissingFields), errors.Is(err, authpw.ErrInvalidEmail), errors.Is(err, authpw.ErrWeakPassword):
		return SignUpResult{}, validationError(err.Error())
	case err != nil:
		return SignUpResult{}, err
	}

	result := SignUpResult{AccountID: resp.Account.ID, VerificationToken: resp.VerificationToken}
	if s.SMTPConfigured() {
		link := strings.TrimRight(s.cfg.PublicURL, "/") + "/verify-email?token=" + resp.VerificationToken
		if err := s.mailer.SendVerificationEmail(resp.Account.Email, resp.Account.DisplayName, link); err != nil {
			s.logger.Printf("app: send verification email to %s: %v", resp.Account.Email, err)
		} else {
			result.EmailSent = true
		}
	}
	return result, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	if s.auth == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	resp, err := s.auth.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	if resp.RequiresVerify {
		return Session{}, domainError(http.StatusForbidden, CodeEmailNotVerified, "Please verify your email before signing in", nil)
	}
	return s.issueSession(ctx, resp.Account)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if s.auth == nil {
		return domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	if err := s.auth.VerifyEmail(ctx, token); err != nil {
		return domainError(http.StatusBadRequest, "VERIFICATION_FAILED", err.Error(), nil)
	}
	return nil
}

// RequestPasswordReset returns the reset token only when no mailer could
// deliver it, so local setups can still finish the flow.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if s.auth == nil {
		return "", domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	token, acc, err := s.auth.RequestPasswordReset(ctx, email)
	if err != nil || token == "" {
		return "", nil
	}
	if !s.SMTPConfigured() {
		return token, nil
	}
	link := strings.TrimRight(s.cfg.PublicURL, "/") + "/reset-password?token=" + token
	if err := s.mailer.SendPasswordResetEmail(acc.Email, acc.DisplayName, link); err != nil {
		s.logger.Printf("app: send reset email to %s: %v", acc.Email, err)
	}
	return "", nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if s.auth == nil {
		return domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	if err := s.auth.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: newPassword}); err != nil {
		return domainError(http.StatusBadRequest, "RESET_FAILED", err.Error(), nil)
	}
	return nil
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	accountID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	acc, err := s.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, acc)
}

func (s *Service) issueSession(ctx context.Context, acc store.Account) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")
	accountPlan := plan.Normalize(acc.Plan)

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   acc.ID,
		Name:  acc.DisplayName,
		Email: acc.Email,
		Plan:  string(accountPlan),
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), acc.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		AccountID:    acc.ID,
		UserName:     acc.DisplayName,
		Email:        acc.Email,
		Plan:         accountPlan,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token and reloads the account so the
// plan reflects any checkout made after the token was issued.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	acc, err := s.store.GetAccountByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		AccountID: acc.ID,
		UserName:  acc.DisplayName,
		Email:     acc.Email,
		Plan:      plan.Normalize(acc.Plan),
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// Collections

func checkCollection(name string) error {
	if _, ok := allowedCollections[name]; !ok {
		return domainError(http.StatusNotFound, CodeNotFound, "Unknown collection", map[string]any{"collection": name})
	}
	return nil
}

// ListRecords returns the caller's records in creation order. Filters on
// server-owned fields are matched here; the rest go to the store.
func (s *Service) ListRecords(ctx context.Context, session Session, name string, filter map[string]string) ([]map[string]any, error) {
	if err := checkCollection(name); err != nil {
		return nil, err
	}
	payloadFilter := make(map[string]string, len(filter))
	metaFilter := make(map[string]string)
	for key, value := range filter {
		if isMetaField(key) {
			metaFilter[key] = value
			continue
		}
		payloadFilter[key] = value
	}

	records, err := s.store.ListRecords(ctx, name, session.AccountID, payloadFilter)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		fields := rec.Fields()
		if matchesMeta(fields, metaFilter) {
			out = append(out, fields)
		}
	}
	return out, nil
}

func (s *Service) CreateRecord(ctx context.Context, session Session, name string, payload map[string]any) (map[string]any, error) {
	if err := checkCollection(name); err != nil {
		return nil, err
	}
	clean := cleanPayload(name, payload)

	switch name {
	case usersCollection:
		if err := s.ensureEmailAvailable(ctx, session, clean); err != nil {
			return nil, err
		}
		clean["plan"] = string(session.Plan)
	case resume.CollectionName:
		if err := s.checkNewResume(ctx, session, clean); err != nil {
			return nil, err
		}
	}

	rec, err := s.store.InsertRecord(ctx, store.Record{
		Collection: name,
		ID:         util.NewID(""),
		OwnerID:    session.AccountID,
		Payload:    clean,
	})
	if err != nil {
		return nil, err
	}
	if name == resume.CollectionName {
		s.afterResumeSaved(session, rec, "Create resume")
	}
	return rec.Fields(), nil
}

func (s *Service) UpdateRecord(ctx context.Context, session Session, name, id string, patch map[string]any) (map[string]any, error) {
	if err := checkCollection(name); err != nil {
		return nil, err
	}
	clean := cleanPayload(name, patch)

	switch name {
	case usersCollection:
		if err := s.ensureEmailAvailable(ctx, session, clean); err != nil {
			return nil, err
		}
	case resume.CollectionName:
		if err := s.checkTemplate(session, clean); err != nil {
			return nil, err
		}
	}

	rec, err := s.store.UpdateRecord(ctx, name, session.AccountID, id, clean)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recordNotFound(name, id)
	}
	if err != nil {
		return nil, err
	}
	if name == resume.CollectionName {
		s.afterResumeSaved(session, rec, "Update resume")
	}
	return rec.Fields(), nil
}

func (s *Service) DeleteRecord(ctx context.Context, session Session, name, id string) error {
	if err := checkCollection(name); err != nil {
		return err
	}
	deleted, err := s.store.DeleteRecord(ctx, name, session.AccountID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return recordNotFound(name, id)
	}
	if name == resume.CollectionName {
		if s.history != nil {
			if err := s.history.Delete(id); err != nil {
				s.logger.Printf("app: delete history %s: %v", id, err)
			}
		}
		if s.search != nil {
			s.search.DeleteResume(id)
		}
	}
	return nil
}

func (s *Service) ensureEmailAvailable(ctx context.Context, session Session, payload map[string]any) error {
	email, _ := payload["email"].(string)
	if strings.TrimSpace(email) == "" {
		return nil
	}
	taken, err := s.store.FieldTakenByOther(ctx, usersCollection, "email", email, session.AccountID)
	if err != nil {
		return err
	}
	if taken {
		return domainError(http.StatusConflict, CodeDuplicateEmail, "Email already in use", map[string]any{"email": email})
	}
	return nil
}

func (s *Service) checkNewResume(ctx context.Context, session Session, payload map[string]any) error {
	title, _ := payload["title"].(string)
	if strings.TrimSpace(title) == "" {
		return validationError(resume.ErrMissingTitle.Error())
	}
	if _, ok := payload["template"]; !ok {
		payload["template"] = resume.TemplateClassic
	}
	if err := s.checkTemplate(session, payload); err != nil {
		return err
	}
	existing, err := s.store.ListRecords(ctx, resume.CollectionName, session.AccountID, nil)
	if err != nil {
		return err
	}
	if !plan.CanCreateResume(session.Plan, len(existing)) {
		return domainError(http.StatusForbidden, CodePlanLimit, "Resume limit reached for the free plan", map[string]any{
			"limit": plan.FreeResumeLimit,
		})
	}
	return nil
}

func (s *Service) checkTemplate(session Session, payload map[string]any) error {
	raw, ok := payload["template"]
	if !ok {
		return nil
	}
	template, _ := raw.(string)
	if !resume.ValidTemplate(template) {
		return validationError(fmt.Sprintf("unknown template %q", template))
	}
	return requireFeature(session, plan.TemplateFeature(template))
}

func requireFeature(session Session, feature plan.Feature) error {
	if plan.Can(session.Plan, feature) {
		return nil
	}
	return domainError(http.StatusForbidden, CodePlanRequired, "Upgrade to Pro to use this feature", map[string]any{
		"feature": string(feature),
		"plan":    string(session.Plan),
	})
}

// afterResumeSaved records a revision and refreshes the search index. Both
// are best effort: the record is already stored.
func (s *Service) afterResumeSaved(session Session, rec store.Record, message string) {
	if s.history != nil {
		if _, _, err := s.history.CommitRevision(rec.ID, rec.Payload, session.UserName, message); err != nil {
			s.logger.Printf("app: commit revision %s: %v", rec.ID, err)
		}
	}
	if s.search != nil {
		res, err := resume.FromRecord(collection.Record(rec.Fields()))
		if err != nil {
			s.logger.Printf("app: index resume %s: %v", rec.ID, err)
			return
		}
		s.search.IndexResume(search.DocFromResume(res))
	}
}

func (s *Service) loadResume(ctx context.Context, session Session, id string) (resume.Resume, store.Record, error) {
	rec, err := s.store.GetRecord(ctx, resume.CollectionName, session.AccountID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return resume.Resume{}, store.Record{}, recordNotFound(resume.CollectionName, id)
	}
	if err != nil {
		return resume.Resume{}, store.Record{}, err
	}
	res, err := resume.FromRecord(collection.Record(rec.Fields()))
	if err != nil {
		return resume.Resume{}, store.Record{}, err
	}
	return res, rec, nil
}

// Resume features

func (s *Service) History(ctx context.Context, session Session, id string, limit int) (map[string]any, error) {
	if _, _, err := s.loadResume(ctx, session, id); err != nil {
		return nil, err
	}
	revisions := make([]gitrepo.Revision, 0)
	if s.history != nil {
		items, err := s.history.History(id, limit)
		if err != nil && !errors.Is(err, gitrepo.ErrNoHistory) {
			return nil, err
		}
		if items != nil {
			revisions = items
		}
	}
	return map[string]any{"resumeId": id, "revisions": revisions}, nil
}

func (s *Service) Revision(ctx context.Context, session Session, id, hash string) (map[string]any, error) {
	if _, _, err := s.loadResume(ctx, session, id); err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, domainError(http.StatusNotFound, "REVISION_NOT_FOUND", "Revision not found", nil)
	}
	payload, rev, changes, err := s.history.PayloadAt(id, hash)
	if errors.Is(err, gitrepo.ErrUnknownRevision) || errors.Is(err, gitrepo.ErrNoHistory) {
		return nil, domainError(http.StatusNotFound, "REVISION_NOT_FOUND", "Revision not found", map[string]any{"hash": hash})
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"resumeId": id,
		"revision": rev,
		"payload":  payload,
		"changes":  changes,
	}, nil
}

func (s *Service) Export(ctx context.Context, session Session, id, rawFormat string) (*export.Result, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, validationError("format must be pdf, docx or html")
	}
	feature := plan.FeatureExportPDF
	if format == export.FormatDOCX {
		feature = plan.FeatureExportDocx
	}
	if err := requireFeature(session, feature); err != nil {
		return nil, err
	}
	res, _, err := s.loadResume(ctx, session, id)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	result, err := s.exporter.Export(ctx, res, format)
	switch {
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil)
	case errors.Is(err, export.ErrUnknownTemplate):
		return nil, validationError(err.Error())
	case err != nil:
		return nil, err
	}
	return result, nil
}

func (s *Service) Import(ctx context.Context, session Session, filename, mimeType string, r io.Reader) (importer.Result, error) {
	if err := requireFeature(session, plan.FeatureImport); err != nil {
		return importer.Result{}, err
	}
	if s.importer == nil {
		return importer.Result{}, domainError(http.StatusServiceUnavailable, "IMPORT_UNAVAILABLE", "Import is not configured", nil)
	}
	result, err := s.importer.Import(ctx, session.AccountID, filename, mimeType, r)
	switch {
	case errors.Is(err, importer.ErrTooLarge):
		return importer.Result{}, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error(), map[string]any{
			"maxBytes": importer.MaxUploadBytes,
		})
	case errors.Is(err, importer.ErrEmpty), errors.Is(err, importer.ErrNoText), errors.Is(err, importer.ErrUnsupportedType):
		return importer.Result{}, validationError(err.Error())
	case err != nil:
		return importer.Result{}, err
	}
	return result, nil
}

func (s *Service) Search(ctx context.Context, session Session, q search.Query) search.Response {
	q.OwnerID = session.AccountID
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

// Checkout is the mocked payment flow: it upgrades the account and mirrors
// the plan onto the caller's users records.
func (s *Service) Checkout(ctx context.Context, session Session, requested string) (map[string]any, error) {
	target := plan.Plan(strings.TrimSpace(requested))
	if target == "" {
		target = plan.Pro
	}
	if target != plan.Pro && target != plan.Free {
		return nil, validationError(fmt.Sprintf("unknown plan %q", requested))
	}
	if err := s.store.SetAccountPlan(ctx, session.AccountID, string(target)); err != nil {
		return nil, err
	}

	users, err := s.store.ListRecords(ctx, usersCollection, session.AccountID, nil)
	if err != nil {
		return nil, err
	}
	for _, rec := range users {
		if _, err := s.store.UpdateRecord(ctx, usersCollection, session.AccountID, rec.ID, map[string]any{"plan": string(target)}); err != nil {
			return nil, err
		}
	}

	if s.SMTPConfigured() && target == plan.Pro {
		if err := s.mailer.SendPlanReceipt(session.Email, session.UserName, string(target)); err != nil {
			s.logger.Printf("app: send receipt to %s: %v", session.Email, err)
		}
	}
	return map[string]any{"ok": true, "plan": string(target), "accountId": session.AccountID}, nil
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func cleanPayload(name string, payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		if collection.IsIdentityKey(key) {
			continue
		}
		if _, managed := serverManagedFields[key]; managed {
			continue
		}
		if name == usersCollection && key == "plan" {
			continue
		}
		out[key] = value
	}
	return out
}

func isMetaField(key string) bool {
	if collection.IsIdentityKey(key) {
		return true
	}
	_, ok := serverManagedFields[key]
	return ok
}

func matchesMeta(fields map[string]any, filter map[string]string) bool {
	for key, want := range filter {
		field := key
		if collection.IsIdentityKey(key) {
			field = "id"
		}
		if fmt.Sprint(fields[field]) != want {
			return false
		}
	}
	return true
}
