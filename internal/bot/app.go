package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3rciful/drivebot/core/bootstrap"
	coretelegram "github.com/m3rciful/drivebot/core/telegram"
	"github.com/m3rciful/drivebot/core/telegram/commands"
	"github.com/m3rciful/drivebot/core/telegram/middleware"
	"github.com/m3rciful/drivebot/core/telegram/router"
	"github.com/m3rciful/drivebot/core/telegram/state"
	"github.com/m3rciful/drivebot/internal/drive"
	"github.com/m3rciful/drivebot/internal/events"
	"github.com/m3rciful/drivebot/internal/storage"

	"github.com/jmoiron/sqlx"
)

// App wires configuration, infrastructure, and the Telegram runtime together.
type App struct {
	cfg       *Config
	db        *sqlx.DB
	sessions  state.Manager
	handlers  *Handlers
	publisher events.Publisher
}

// Bootstrap initializes logging, the database, Drive access, and the optional
// event publisher, then assembles the conversation flow and its handlers.
func Bootstrap(cfg *Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   &cfg.Core,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	gateway, err := drive.NewService(ctx, cfg.Core.Drive)
	if err != nil {
		_ = res.DB.Close()
		return nil, fmt.Errorf("drive init failed: %w", err)
	}

	publisher, err := events.New(cfg.Core.Events)
	if err != nil {
		_ = res.DB.Close()
		return nil, fmt.Errorf("events init failed: %w", err)
	}

	sessions := state.NewMemoryManager()
	recorder := storage.NewUploadStore(res.DB)
	flow := NewFlow(sessions, gateway, recorder, publisher, cfg.Core.Drive.DownloadDir)
	handlers := NewHandlers(flow, recorder, cfg.History.Limit)

	state.RegisterHandler(StateAwaitingPath, handlers.AwaitingPath)
	state.RegisterHandler(StateAwaitingConfirm, handlers.AwaitingConfirm)

	return &App{
		cfg:       cfg,
		db:        res.DB,
		sessions:  sessions,
		handlers:  handlers,
		publisher: publisher,
	}, nil
}

// stateGetter adapts the session manager to the middleware contract.
type stateGetter struct {
	m state.Manager
}

func (g stateGetter) GetState(userID int64) string {
	return string(g.m.GetState(userID))
}

// TelegramRunOptions builds the command registry, routes, and middleware chain.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handlers.Start,
		Description: "How the bot works",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.handlers.Cancel,
		Description: "Abort the current upload",
	})
	reg.RegisterCommand("/history", commands.Command{
		Handler:     a.handlers.History,
		Description: "Your recent uploads",
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     a.handlers.Stats,
		Description: "Upload totals",
		AdminOnly:   true,
		Hidden:      true,
	})

	// Stray confirm presses (old keyboards, already-finished flows) are dropped
	// unless the user is actually waiting on a confirmation.
	confirm := middleware.State(stateGetter{m: a.sessions}, string(StateAwaitingConfirm))(a.handlers.ConfirmCallback)
	if err := reg.RegisterCallback(confirmCallbackKey, confirm); err != nil {
		return coretelegram.RunOptions{}, err
	}

	fb := fallbacks{h: a.handlers}
	reg.SetCallbackNotFound(fb.UnknownCallback())

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: a.cfg.Core.Telegram.AdminID,
	})
	routes = append(routes, router.TextRoutes(a.sessions, reg, router.TextOptions{
		UnknownText:     fb.UnknownText(),
		UnknownDocument: fb.UnknownDocument(),
	})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))

	return coretelegram.RunOptions{
		Config:      &a.cfg.Core,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(&a.cfg.Core, nil),
		Routes:      routes,
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			return errors.Join(a.publisher.Close(), a.db.Close())
		},
	}, nil
}
