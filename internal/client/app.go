// Package client is the terminal front end: a page table driven by a
// navigation store, with resumes and the user profile kept through the
// collection adapter.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"resumekit/api/internal/collection"
	"resumekit/api/internal/export"
	"resumekit/api/internal/navigation"
	"resumekit/api/internal/plan"
	"resumekit/api/internal/resume"
	"resumekit/api/internal/session"
)

const (
	usersCollection = "users"
	routeNotFound   = "not-found"
)

// ErrQuit is returned by Exec for the quit command.
var ErrQuit = errors.New("client: quit")

type resumeExporter interface {
	Export(context.Context, resume.Resume, export.Format) (*export.Result, error)
}

// Page renders one route to the app output.
type Page func(ctx context.Context, a *App, state navigation.State) error

type App struct {
	nav      *navigation.Store
	loc      navigation.Location
	resumes  *collection.Collection
	users    *collection.Collection
	transfer *session.Transfer
	exporter resumeExporter
	plan     plan.Plan
	out      io.Writer
	logger   *log.Logger
	metrics  prometheus.Gatherer

	pages map[string]Page

	mu          sync.Mutex
	current     string
	dirty       bool
	unsubscribe func()
}

type Option func(*App)

// WithLocation replaces the default in-memory history.
func WithLocation(loc navigation.Location) Option {
	return func(a *App) {
		if loc != nil {
			a.loc = loc
		}
	}
}

func WithExporter(exporter resumeExporter) Option {
	return func(a *App) { a.exporter = exporter }
}

func WithTransfer(t *session.Transfer) Option {
	return func(a *App) {
		if t != nil {
			a.transfer = t
		}
	}
}

// WithPlan sets the plan used to label features on the pricing page and to
// gate local exports.
func WithPlan(p plan.Plan) Option {
	return func(a *App) { a.plan = plan.Normalize(string(p)) }
}

// WithMetrics lets the metrics command print what g gathers.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(a *App) { a.metrics = g }
}

func WithLogger(logger *log.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New builds the app over backend and renders pages to out. The app starts
// on the location's current address.
func New(backend collection.Backend, out io.Writer, opts ...Option) *App {
	adapter := collection.NewAdapter(backend)
	a := &App{
		loc:      navigation.NewMemoryLocation("/"),
		resumes:  adapter.Collection(resume.CollectionName),
		users:    adapter.Collection(usersCollection),
		transfer: session.NewTransfer(),
		plan:     plan.Free,
		out:      out,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.pages = map[string]Page{
		navigation.RouteHome: homePage,
		"dashboard":          dashboardPage,
		"builder":            builderPage,
		"preview":            previewPage,
		"import":             importPage,
		"pricing":            pricingPage,
		"login":              loginPage,
		routeNotFound:        notFoundPage,
	}
	a.nav = navigation.New(a.loc, navigation.WithLogger(a.logger))
	a.current = a.pageFor(a.nav.Route())
	a.dirty = true
	a.unsubscribe = a.nav.Subscribe(a.onNavigate)
	return a
}

// Close detaches the app from its history provider.
func (a *App) Close() {
	a.unsubscribe()
	a.nav.Close()
}

func (a *App) Navigation() *navigation.Store { return a.nav }

func (a *App) Transfer() *session.Transfer { return a.transfer }

// CurrentPage is the page selected for the current route.
func (a *App) CurrentPage() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *App) pageFor(route string) string {
	if _, ok := a.pages[route]; ok {
		return route
	}
	return routeNotFound
}

func (a *App) onNavigate(state navigation.State) {
	a.mu.Lock()
	a.current = a.pageFor(state.Route())
	a.dirty = true
	a.mu.Unlock()
}

// Render draws the current page if navigation changed since the last render.
func (a *App) Render(ctx context.Context) error {
	a.mu.Lock()
	if !a.dirty {
		a.mu.Unlock()
		return nil
	}
	a.dirty = false
	name := a.current
	a.mu.Unlock()

	fmt.Fprintf(a.out, "== %s (%s)\n", name, a.nav.State().Href())
	return a.pages[name](ctx, a, a.nav.State())
}

// Run reads commands from in until EOF or quit. Command failures are printed
// and the loop continues.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	if err := a.Render(ctx); err != nil {
		a.printError(err)
	}
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(a.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(a.out)
			return scanner.Err()
		}
		err := a.Exec(ctx, scanner.Text())
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			a.printError(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Exec runs one command line and renders the page it leads to.
func (a *App) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := commands[fields[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, try \"help\"", fields[0])
	}
	if len(fields)-1 < cmd.minArgs {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	if err := cmd.run(ctx, a, fields[1:]); err != nil {
		return err
	}
	return a.Render(ctx)
}

func (a *App) printError(err error) {
	var remoteErr *collection.RemoteError
	if errors.As(err, &remoteErr) {
		fmt.Fprintf(a.out, "error: %s\n", remoteErr.Message)
		return
	}
	fmt.Fprintf(a.out, "error: %v\n", err)
}
