// Command lockctl inspects and changes account lockout state directly in
// Postgres. Sessions held by a running API process are not affected; use the
// admin API to end them.
//
//	lockctl status <email>
//	lockctl lock <email>
//	lockctl unlock <email>
//	lockctl create-user <email> <name> <role>   (password read from LOCKCTL_PASSWORD)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/config"
	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/repositories"
	"github.com/BradenHooton/gatekeeper/internal/services"
	"github.com/BradenHooton/gatekeeper/pkg/clock"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
)

const actor = "lockctl"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "lockctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() error {
	return errors.New("usage: lockctl status|lock|unlock <email> | create-user <email> <name> <role>")
}

func run(args []string, out io.Writer) error {
	if len(args) < 2 {
		return usage()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	audit := pkglogger.NewAuditLogger(logger, nil)

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := repositories.NewUserRepository(db)
	lockout := services.NewLockoutService(repositories.NewLockoutRepository(db), services.LockoutPolicy{
		MaxAttempts:    cfg.Lockout.MaxAttempts,
		Duration:       cfg.Lockout.Duration,
		PermanentAfter: cfg.Lockout.PermanentAfter,
	}, clock.Real{}, logger, audit)

	cmd, email := args[0], args[1]

	if cmd == "create-user" {
		if len(args) < 4 {
			return usage()
		}
		u, err := services.NewUserService(users, logger).CreateUser(ctx, email, args[2], args[3], os.Getenv("LOCKCTL_PASSWORD"))
		if err != nil {
			return err
		}
		return printJSON(out, map[string]string{"id": u.ID, "email": u.Email, "role": u.Role})
	}

	user, err := users.GetByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("no account with email %s", email)
	}
	if err != nil {
		return err
	}

	var st *models.LockoutState
	switch cmd {
	case "status":
		st, err = lockout.State(ctx, user.ID)
	case "lock":
		st, err = lockout.LockPermanently(ctx, user.ID, actor)
	case "unlock":
		st, err = lockout.Unlock(ctx, user.ID, actor)
	default:
		return usage()
	}
	if err != nil {
		return err
	}

	return printJSON(out, lockout.View(st, user.Email))
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
