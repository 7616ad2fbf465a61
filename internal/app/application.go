package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"chathub/internal/api"
	"chathub/internal/attachments"
	"chathub/internal/auth"
	"chathub/internal/authz"
	"chathub/internal/config"
	"chathub/internal/database"
	"chathub/internal/groups"
	"chathub/internal/hub"
	"chathub/internal/identity"
	"chathub/internal/receipts"
	"chathub/internal/roster"
	"chathub/internal/router"
	"chathub/internal/websocket"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	identity   *identity.Store
	messages   *database.Store
	messageHub *hub.Hub
	router     *router.Router
	apiServer  *api.Server
	httpServer *http.Server
	logger     *zap.Logger

	janitorCancel context.CancelFunc
	janitorDone   sync.WaitGroup
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Stores → Authorization → Presence → Accounts → Router → Groups → Transport → HTTP
func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	ctx := context.Background()

	// STEP 1: Identity store, with the global group seeded
	identityStore, err := identity.NewStore(cfg.IdentityStore(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity store: %w", err)
	}
	if err := identityStore.EnsureGlobalGroup(ctx); err != nil {
		_ = identityStore.Close()
		return nil, fmt.Errorf("failed to seed global group: %w", err)
	}
	claimed, err := identityStore.ClaimLegacyOwners(ctx)
	if err != nil {
		_ = identityStore.Close()
		return nil, err
	}
	if claimed > 0 {
		logger.Info("legacy group owners claimed", zap.Int64("groups", claimed))
	}

	// STEP 2: Message store (applies its embedded migrations)
	messageStore, err := database.NewStore(cfg.MessageStore(), logger)
	if err != nil {
		_ = identityStore.Close()
		return nil, fmt.Errorf("failed to initialize message store: %w", err)
	}

	closeStores := func() {
		_ = messageStore.Close()
		_ = identityStore.Close()
	}

	// STEP 3: Authorization rules with the global ban set warmed
	checker := authz.NewChecker(identityStore, logger)
	if err := checker.LoadGlobalBans(ctx); err != nil {
		closeStores()
		return nil, fmt.Errorf("failed to load global bans: %w", err)
	}

	// STEP 4: Roster of every known identity
	users := roster.New(identityStore, logger)
	if err := users.Load(ctx); err != nil {
		closeStores()
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}

	// STEP 5: Connection registry and hub for presence and fan-out
	registry := websocket.NewRegistry()
	messageHub := hub.NewHub(registry, users, checker, logger)

	// STEP 6: Read receipts and attachment storage
	receiptEngine := receipts.NewEngine(messageStore, identityStore, checker, logger)
	files, err := attachments.NewStore(cfg.Files.Dir, cfg.Files.MaxBytes, logger)
	if err != nil {
		closeStores()
		return nil, fmt.Errorf("failed to initialize attachment store: %w", err)
	}

	// STEP 7: Accounts; the hub observes profile changes to refresh the roster
	tokens, err := auth.NewTokens(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL.Duration,
		RefreshTTL:    cfg.Auth.RefreshTTL.Duration,
		Issuer:        cfg.Auth.Issuer,
	})
	if err != nil {
		closeStores()
		return nil, fmt.Errorf("failed to initialize tokens: %w", err)
	}
	accounts := auth.NewService(identityStore, tokens, cfg.Auth.BcryptCost, messageHub, logger)

	// STEP 8: Message router
	messageRouter := router.NewRouter(router.Deps{
		Hub:      messageHub,
		Identity: identityStore,
		Messages: messageStore,
		Checker:  checker,
		Receipts: receiptEngine,
		Files:    files,
		Auth:     accounts,
	}, router.Config{
		HistoryLimit:    cfg.WebSocket.HistoryLimit,
		EventsPerSecond: cfg.WebSocket.EventsPerSecond,
	}, logger)

	// STEP 9: Group lifecycle, notifying through the router and the hub
	groupManager := groups.NewManager(identityStore, messageStore, checker, messageRouter, messageHub, logger)

	// STEP 10: WebSocket handler with the router as its session
	wsHandler := websocket.NewHandler(messageRouter, websocket.HandlerConfig{
		JoinTimeout:     cfg.WebSocket.JoinTimeout.Duration,
		PingInterval:    cfg.WebSocket.PingInterval.Duration,
		PongWait:        cfg.WebSocket.PongWait.Duration,
		EventTimeout:    cfg.WebSocket.EventTimeout.Duration,
		MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
	}, logger)

	// STEP 11: API server serving both REST routes and the socket endpoint
	apiServer := api.NewServer(api.Deps{
		Auth:     accounts,
		Groups:   groupManager,
		Router:   messageRouter,
		Receipts: receiptEngine,
		Files:    files,
		Checker:  checker,
		Identity: identityStore,
		Messages: messageStore,
		Hub:      messageHub,
		Socket:   wsHandler,
	}, cfg.HTTP.AllowedOrigins, logger)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout.Duration,
		WriteTimeout: cfg.HTTP.WriteTimeout.Duration,
	}

	return &Application{
		config:     cfg,
		identity:   identityStore,
		messages:   messageStore,
		messageHub: messageHub,
		router:     messageRouter,
		apiServer:  apiServer,
		httpServer: httpServer,
		logger:     logger.With(zap.String("component", "app")),
	}, nil
}

// Start begins application execution
// Startup coordination ensures all components ready before serving
// Hub starts first to handle messages, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("starting chathub", zap.String("addr", app.httpServer.Addr))

	// STEP 1: Start message hub (background presence processing)
	if err := app.messageHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	// STEP 2: Start the rate limiter janitor
	app.startJanitor()

	// STEP 3: Start HTTP server (accepts connections)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Verify server is ready before returning
	select {
	case err := <-serverErrCh:
		app.stopBackground()
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("chathub started")
		return nil
	case <-ctx.Done():
		app.stopBackground()
		return ctx.Err()
	}
}

func (app *Application) startJanitor() {
	janitorCtx, cancel := context.WithCancel(context.Background())
	app.janitorCancel = cancel
	app.janitorDone.Add(1)
	go func() {
		defer app.janitorDone.Done()
		app.router.RunJanitor(janitorCtx, app.config.WebSocket.JanitorInterval.Duration)
	}()
}

func (app *Application) stopBackground() {
	if app.janitorCancel != nil {
		app.janitorCancel()
		app.janitorDone.Wait()
		app.janitorCancel = nil
	}
	if err := app.messageHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		app.logger.Warn("message hub shutdown error", zap.Error(err))
	}
}

// Stop gracefully shuts down the application
// Shutdown coordination ensures proper resource cleanup
// Reverse dependency order: HTTP → Sockets → Janitor → Hub → Stores
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down chathub")

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// STEP 2: Close upgraded sockets, which Shutdown leaves open
	app.messageHub.CloseAll()

	// STEP 3: Stop background processing
	app.stopBackground()

	// STEP 4: Close both stores
	var errs []error
	if err := app.messages.Close(); err != nil {
		errs = append(errs, fmt.Errorf("message store: %w", err))
	}
	if err := app.identity.Close(); err != nil {
		errs = append(errs, fmt.Errorf("identity store: %w", err))
	}

	app.logger.Info("chathub shutdown complete")
	return errors.Join(errs...)
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
