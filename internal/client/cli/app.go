// Package cli implements the interactive FinSync shell. It is a thin
// collaborator over the sync engine; correctness of synchronization never
// depends on anything here.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dpetrovs/finsync/internal/client/cache"
	"github.com/dpetrovs/finsync/internal/client/config"
	"github.com/dpetrovs/finsync/internal/client/models"
	"github.com/dpetrovs/finsync/internal/client/repositories/meta"
	"github.com/dpetrovs/finsync/internal/client/services"
	clientsync "github.com/dpetrovs/finsync/internal/client/sync"
	"github.com/dpetrovs/finsync/internal/client/transport"
	"github.com/dpetrovs/finsync/internal/common"
	"github.com/dpetrovs/finsync/internal/filex"
	"github.com/dpetrovs/finsync/internal/logging"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config *config.Config
	log    logging.Logger

	db    *sql.DB
	meta  *meta.Store
	cache *cache.Store

	engine  *services.Engine
	session services.SessionService

	Mode   Mode
	reader *bufio.Reader
}

func NewApp(cfg *config.Config, log logging.Logger) (*App, error) {
	ctx := context.Background()

	dataDir := cfg.DataDir
	if filepath.IsAbs(dataDir) {
		if err := filex.EnsureDir(dataDir); err != nil {
			return nil, fmt.Errorf("preparing data dir: %w", err)
		}
	} else {
		var err error
		if dataDir, err = filex.EnsureSubDir(dataDir); err != nil {
			return nil, fmt.Errorf("preparing data dir: %w", err)
		}
	}

	db, err := services.InitDatabase(ctx, filepath.Join(dataDir, "finsync.db"))
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	cacheStore, err := cache.NewStore(filepath.Join(dataDir, "cache"))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing cache: %w", err)
	}

	return &App{
		config: cfg,
		log:    log,
		db:     db,
		meta:   meta.NewStore(meta.NewSQLiteRepository(db), log),
		cache:  cacheStore,
		Mode:   ModeOffline,
		reader: bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		fmt.Printf("Working %s\n", mode)
	}
}

// startSession builds the transport and engine for the given API key, cold
// starts from cache, and launches the long-poll subscription. A connection
// failure is not fatal: the app keeps running in offline mode.
func (a *App) startSession(ctx context.Context, apiKey string) error {
	rpc := transport.NewClient(transport.Config{
		BaseURL:     a.config.ServerEndpointAddr,
		AuthPhrase:  a.config.AuthPhrase,
		AuthID:      a.config.AuthID,
		APIKey:      apiKey,
		Timeout:     a.config.RequestTimeout,
		PollTimeout: a.config.PollTimeout,
	}, a.log)
	rpc.Clock = a.meta
	rpc.Slow = func(elapsed time.Duration) {
		fmt.Printf("Still waiting for the server (%s)...\n", elapsed)
	}

	deviceID, err := a.meta.DeviceID(ctx)
	if err != nil {
		return err
	}
	device := clientsync.DeviceInfo{ID: deviceID, Name: a.config.DeviceName}

	a.engine = services.NewEngine(rpc, a.meta, device, a.log)
	a.session = services.NewSessionService(a.engine, rpc, a.cache, a.meta, a.log)

	a.engine.Subscriber.OnResubscribeFailed = func(err error) {
		a.setMode(ModeOffline)
		fmt.Println("Session expired, please log in again")
	}

	if err := a.session.ColdStart(ctx); err != nil {
		if errors.Is(err, common.ErrConnection) {
			a.setMode(ModeOffline)
		} else {
			return err
		}
	} else {
		a.setMode(ModeOnline)
	}

	_ = a.session.Subscribe(ctx)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.close(ctx)

	apiKey, err := a.meta.APIKey(ctx)
	if err != nil {
		return err
	}
	if apiKey != "" {
		if err := a.startSession(ctx, apiKey); err != nil {
			return err
		}
	} else {
		fmt.Println("No stored session; use `login` first")
	}

	for {
		line, err := GetSimpleText(a.reader, "", os.Stdout)
		if err != nil {
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "login":
			a.cmdLogin(ctx)
		case "list":
			a.cmdList()
		case "add":
			a.cmdAdd(ctx, fields[1:])
		case "delete":
			a.cmdDelete(ctx, fields[1:])
		case "quit", "exit":
			return nil
		default:
			fmt.Println("Commands: login, list, add <title> <amount>, delete <id>, quit")
		}
	}
}

func (a *App) cmdLogin(ctx context.Context) {
	apiKey, err := GetAPIKey(os.Stdout)
	if err != nil || apiKey == "" {
		fmt.Println("No API key entered")
		return
	}
	stored, err := a.meta.APIKey(ctx)
	if err != nil {
		fmt.Printf("Reading stored session failed: %v\n", err)
		return
	}
	if apiKey != stored {
		// A different key may belong to a different account; its watermark
		// and cache must not be reused.
		if err := meta.ReplaceAPIKey(ctx, a.db, apiKey, a.log); err != nil {
			fmt.Printf("Saving API key failed: %v\n", err)
			return
		}
	}
	if err := a.startSession(ctx, apiKey); err != nil {
		fmt.Printf("Login failed: %v\n", err)
	}
}

func (a *App) cmdList() {
	if a.engine == nil {
		fmt.Println("Not logged in")
		return
	}
	for _, tx := range a.engine.Graph.Transactions.Snapshot() {
		sign := "+"
		if tx.Expense {
			sign = "-"
		}
		fmt.Printf("%s  %s  %s%s  %s\n", tx.ID, tx.Date, sign, tx.Amount, tx.Title)
	}
}

func (a *App) cmdAdd(ctx context.Context, args []string) {
	if a.engine == nil {
		fmt.Println("Not logged in")
		return
	}
	if len(args) < 2 {
		fmt.Println("Usage: add <title> <amount>")
		return
	}
	amount, err := decimal.NewFromString(args[len(args)-1])
	if err != nil {
		fmt.Printf("Bad amount: %v\n", err)
		return
	}

	tx := models.NewTransaction()
	tx.Title = strings.Join(args[:len(args)-1], " ")
	tx.Amount = amount
	tx.Expense = true
	tx.Date = time.Now().Format("2006-01-02")

	a.engine.Graph.Transactions.Upsert(tx)
	if err := a.engine.Transactions.Commit(ctx, tx); err != nil {
		fmt.Printf("Saved locally, commit failed: %v\n", err)
		return
	}
	fmt.Printf("Added %s\n", tx.ID)
}

func (a *App) cmdDelete(ctx context.Context, args []string) {
	if a.engine == nil {
		fmt.Println("Not logged in")
		return
	}
	if len(args) != 1 {
		fmt.Println("Usage: delete <id>")
		return
	}
	tx, ok := a.engine.Graph.Transactions.Get(args[0])
	if !ok {
		fmt.Println("Not found")
		return
	}
	tx.SetPendingAction(models.ActionDelete)
	if err := a.engine.Transactions.Commit(ctx, tx); err != nil {
		fmt.Printf("Delete failed: %v\n", err)
	}
}

func (a *App) close(ctx context.Context) {
	if a.session != nil {
		if err := a.session.Close(ctx); err != nil {
			a.log.Error(ctx, "closing session", "err", err)
		}
	}
	_ = a.db.Close()
}
