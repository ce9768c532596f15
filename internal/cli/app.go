package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/bsvalues/terrafield/internal/config"
	"github.com/bsvalues/terrafield/internal/document"
	"github.com/bsvalues/terrafield/internal/engine"
	"github.com/bsvalues/terrafield/internal/logging"
	"github.com/bsvalues/terrafield/internal/request"
	"github.com/bsvalues/terrafield/internal/securestore"
	"github.com/bsvalues/terrafield/internal/transport"
)

// App owns the interactive surface of the field client: the REPL, the
// login state and the live document handles opened from the prompt.
type App struct {
	config     *config.Config
	client     *transport.Client
	engine     *engine.Engine
	registry   *document.Registry
	dispatcher *request.Dispatcher
	tokens     *securestore.FileStore
	log        logging.Logger
	reader     *bufio.Reader

	mu       sync.Mutex
	loggedIn bool
	open     map[string]*document.AutomergeDoc
	handles  map[string]*document.Handle
}

// NewApp wires the App against already constructed services. A surviving
// token file counts as a logged-in session until the server says otherwise.
func NewApp(
	cfg *config.Config,
	client *transport.Client,
	eng *engine.Engine,
	registry *document.Registry,
	dispatcher *request.Dispatcher,
	tokens *securestore.FileStore,
	log logging.Logger,
) *App {
	a := &App{
		config:     cfg,
		client:     client,
		engine:     eng,
		registry:   registry,
		dispatcher: dispatcher,
		tokens:     tokens,
		log:        log,
		reader:     bufio.NewReader(os.Stdin),
		open:       make(map[string]*document.AutomergeDoc),
		handles:    make(map[string]*document.Handle),
	}

	if saved, err := tokens.Load(); err == nil && saved.AccessToken != "" {
		a.loggedIn = true
	}
	return a
}

// Run starts the REPL on stdin and blocks until the user quits or ctx is
// canceled.
func (a *App) Run(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.promptStatus, scanner)
}

func (a *App) isLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loggedIn
}

func (a *App) setLoggedIn(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loggedIn = v
}

func (a *App) promptStatus() string {
	s := a.engine.Status()
	mode := "offline"
	if s.Connected {
		mode = "online"
	}
	pending := s.PendingRequests + s.PendingFragments
	if pending > 0 {
		return fmt.Sprintf("%s, %d pending", mode, pending)
	}
	return mode
}
