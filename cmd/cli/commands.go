package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/remind-keeper/internal/auth"
	"github.com/and161185/remind-keeper/internal/config"
	"github.com/and161185/remind-keeper/internal/migrate"
	httpserver "github.com/and161185/remind-keeper/internal/server/http"
)

func (o *rootOptions) client() (*apiClient, error) {
	tok, err := loadToken(time.Now())
	if err != nil {
		return nil, err
	}
	return &apiClient{base: o.Addr, token: tok, http: &http.Client{Timeout: o.Timeout}}, nil
}

func (o *rootOptions) withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, o.Timeout)
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.Config)
}

func tokenCmd(opts *rootOptions) *cobra.Command {
	var (
		key string
		sub string
		ttl time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token and save it in the user config dir",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				key = cfg.HTTP.JWTKey
			}
			if key == "" {
				return fmt.Errorf("signing key required (--key, http.jwt_key or %s)", config.EnvJWTKey)
			}
			tok, exp, err := auth.Issue([]byte(key), sub, ttl, time.Now())
			if err != nil {
				return err
			}
			if err := saveToken(tokenFile{AccessToken: tok, Subject: sub, ExpiresAt: exp}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token for %q saved to %s (expires %s)\n", sub, tokenPath(), exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "HS256 signing key (defaults to config)")
	cmd.Flags().StringVar(&sub, "sub", "ops", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func ownerFlag(cmd *cobra.Command, owner *int64) {
	cmd.Flags().Int64Var(owner, "owner", 0, "owner identity (Telegram user id)")
	_ = cmd.MarkFlagRequired("owner")
}

func listCmd(opts *rootOptions) *cobra.Command {
	var owner int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.withTimeout(cmd)
			defer cancel()

			var out []httpserver.ReminderJSON
			if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/owners/%d/reminders", owner), nil, &out); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(out) == 0 {
				fmt.Fprintln(w, "no reminders")
				return nil
			}
			for _, r := range out {
				fmt.Fprintf(w, "%d. [id=%d] %q at %s\n", r.Position, r.ID, r.Text, r.FireAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	ownerFlag(cmd, &owner)
	return cmd
}

func addCmd(opts *rootOptions) *cobra.Command {
	var owner int64
	cmd := &cobra.Command{
		Use:   "add <text...>",
		Short: "Submit a reminder as free text, e.g. \"call mom tomorrow at 10:00\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.withTimeout(cmd)
			defer cancel()

			var out httpserver.ReminderJSON
			req := httpserver.CreateRequest{Text: strings.Join(args, " ")}
			if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/owners/%d/reminders", owner), req, &out); err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), out)
			return nil
		},
	}
	ownerFlag(cmd, &owner)
	return cmd
}

func editCmd(opts *rootOptions) *cobra.Command {
	var (
		owner int64
		id    int64
		text  string
		at    string
	)
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Replace a reminder's text and fire time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fireAt, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.withTimeout(cmd)
			defer cancel()

			req := httpserver.UpdateRequest{Text: text, FireAt: fireAt}
			var resp httpserver.UpdateResponse
			if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/v1/owners/%d/reminders/%d", owner, id), req, &resp); err != nil {
				return notFound(err, id)
			}
			if resp.Warning != "" {
				fmt.Fprintln(cmd.OutOrStdout(), "updated, warning:", resp.Warning)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "updated")
			return nil
		},
	}
	ownerFlag(cmd, &owner)
	cmd.Flags().Int64Var(&id, "id", 0, "reminder id")
	cmd.Flags().StringVar(&text, "text", "", "new text")
	cmd.Flags().StringVar(&at, "at", "", "new fire time, RFC3339")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("text")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func rmCmd(opts *rootOptions) *cobra.Command {
	var owner, id int64
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Delete a reminder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.withTimeout(cmd)
			defer cancel()

			if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/owners/%d/reminders/%d", owner, id), nil, nil); err != nil {
				return notFound(err, id)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		},
	}
	ownerFlag(cmd, &owner)
	cmd.Flags().Int64Var(&id, "id", 0, "reminder id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func ownerCmd(opts *rootOptions) *cobra.Command {
	var (
		owner int64
		name  string
	)
	cmd := &cobra.Command{
		Use:   "owner",
		Short: "Register an owner or refresh its display name",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.withTimeout(cmd)
			defer cancel()

			req := httpserver.OwnerRequest{DisplayName: name}
			if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/v1/owners/%d", owner), req, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	ownerFlag(cmd, &owner)
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func sweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired reminders now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.withTimeout(cmd)
			defer cancel()

			var out httpserver.SweepResponse
			if err := c.do(ctx, http.MethodPost, "/v1/sweep", nil, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", out.Deleted)
			return nil
		},
	}
}

func migrateCmd(opts *rootOptions) *cobra.Command {
	var dsn string
	resolve := func() (string, error) {
		if dsn != "" {
			return dsn, nil
		}
		cfg, err := opts.loadConfig()
		if err != nil {
			return "", err
		}
		if cfg.Database.DSN == "" {
			return "", fmt.Errorf("dsn required (--dsn, database.dsn or %s)", config.EnvDatabaseDSN)
		}
		return cfg.Database.DSN, nil
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations (postgres)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := resolve()
			if err != nil {
				return err
			}
			if err := migrate.Up(cmd.Context(), d); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (defaults to config)")
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := resolve()
			if err != nil {
				return err
			}
			v, err := migrate.Status(cmd.Context(), d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		},
	})
	return cmd
}

func notFound(err error, id int64) error {
	var ae *apiError
	if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
		return fmt.Errorf("reminder %d not found", id)
	}
	return err
}
