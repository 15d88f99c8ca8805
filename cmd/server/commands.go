// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/go-auth-service/internal/config"
	"codeberg.org/oliverandrich/go-auth-service/internal/database"
	"codeberg.org/oliverandrich/go-auth-service/internal/server"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/auth"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

// withServices opens the database, wires the services and hands them to fn.
func withServices(cmd *cli.Command, fn func(*server.Services) error) error {
	cfg := config.NewFromCLI(cmd)
	server.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeDB(db)

	svc, err := server.NewServices(cfg, db)
	if err != nil {
		return err
	}
	defer svc.Close()

	return fn(svc)
}

func closeDB(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Delete expired sessions and unverified registrations",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withServices(cmd, func(svc *server.Services) error {
				sessions, principals, err := server.Cleanup(ctx, svc)
				if err != nil {
					return err
				}
				slog.Info("cleanup_done", "sessions", sessions, "principals", principals)
				return nil
			})
		},
	}
}

func createAdminCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-admin",
		Usage: "Create an administrator or promote an existing principal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "email",
				Usage:    "Email address of the administrator",
				Required: true,
				Sources:  cli.EnvVars("ADMIN_EMAIL"),
			},
			&cli.StringFlag{
				Name:    "name",
				Value:   "Administrator",
				Usage:   "Display name",
				Sources: cli.EnvVars("ADMIN_NAME"),
			},
			&cli.StringFlag{
				Name:     "password",
				Usage:    "Password for a new administrator",
				Required: true,
				Sources:  cli.EnvVars("ADMIN_PASSWORD"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withServices(cmd, func(svc *server.Services) error {
				p, created, err := svc.Auth.EnsureAdmin(ctx, auth.AdminParams{
					Name:     cmd.String("name"),
					Email:    cmd.String("email"),
					Password: cmd.String("password"),
				})
				if err != nil {
					return fmt.Errorf("failed to create admin: %w", err)
				}
				slog.Info("admin_ready", "principal_id", p.ID, "email", p.Email, "created", created)
				return nil
			})
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Inspect or roll back the database schema",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Print the applied schema version",
				Action: migrateAction(nil),
			},
			{
				Name:   "down",
				Usage:  "Roll back the most recent migration",
				Action: migrateAction(database.MigrateDown),
			},
			{
				Name:  "reset",
				Usage: "Roll back all migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "Confirm that all data may be dropped"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if !cmd.Bool("yes") {
						return errors.New("migrate reset drops every table; pass --yes to confirm")
					}
					return migrateAction(database.MigrateReset)(ctx, cmd)
				},
			},
		},
	}
}

// migrateAction opens the database, which applies pending migrations, runs
// step if set and reports the resulting version.
func migrateAction(step func(db *sql.DB) error) cli.ActionFunc {
	return func(_ context.Context, cmd *cli.Command) error {
		cfg := config.NewFromCLI(cmd)
		server.SetupLogger(cfg.Log.Level, cfg.Log.Format)

		db, err := database.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer closeDB(db)

		if step != nil {
			if err := step(db.DB); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
		}

		version, err := database.MigrationVersion(db.DB)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		slog.Info("schema_version", "version", version)
		return nil
	}
}
