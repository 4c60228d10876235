// Command auth manages tenant API keys.
//
// Usage:
//
//	auth create --tenant acme --name "my-app" [--rate-limit 100] [--admin] [--expires-in 720h]
//	auth revoke --key <raw-key>
//	auth list   [--tenant acme]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/postgres"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "auth",
		Usage: "Manage tenant API keys",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				EnvVars: []string{"KK_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "create",
				Usage:  "Create a new API key",
				Action: withValidator(createCommand),
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Usage: "tenant the key belongs to", Required: true},
					&cli.StringFlag{Name: "name", Usage: "name for the api key", Required: true},
					&cli.IntFlag{Name: "rate-limit", Usage: "requests per rate limit window", Value: apikey.DefaultRateLimit},
					&cli.BoolFlag{Name: "admin", Usage: "allow the key to manage its tenant's keys"},
					&cli.DurationFlag{Name: "expires-in", Usage: "expiry duration, e.g. 720h (optional)"},
				},
			},
			{
				Name:   "revoke",
				Usage:  "Revoke an existing API key",
				Action: withValidator(revokeCommand),
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Usage: "raw api key to revoke", Required: true},
				},
			},
			{
				Name:   "list",
				Usage:  "List active API keys",
				Action: withValidator(listCommand),
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Usage: "only list this tenant's keys"},
				},
			},
		},
	}
}

// keyStore is the part of the validator the commands use.
type keyStore interface {
	CreateKey(ctx context.Context, req apikey.NewKey) (string, *apikey.KeyInfo, error)
	RevokeKey(ctx context.Context, rawKey string) error
	ListKeys(ctx context.Context, tenantID string) ([]apikey.KeyInfo, error)
}

func withValidator(action func(c *cli.Context, keys keyStore) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

		db, err := postgres.New(c.Context, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()

		validator := apikey.NewValidator(db)
		if err := validator.Migrate(c.Context); err != nil {
			return err
		}
		return action(c, validator)
	}
}

func createCommand(c *cli.Context, keys keyStore) error {
	req := apikey.NewKey{
		TenantID:  c.String("tenant"),
		Name:      c.String("name"),
		RateLimit: c.Int("rate-limit"),
		IsAdmin:   c.Bool("admin"),
	}
	if d := c.Duration("expires-in"); d > 0 {
		t := time.Now().Add(d)
		req.ExpiresAt = &t
	}

	raw, info, err := keys.CreateKey(c.Context, req)
	if err != nil {
		return fmt.Errorf("creating key: %w", err)
	}
	printCreated(c.App.Writer, raw, info)
	return nil
}

func printCreated(w io.Writer, raw string, info *apikey.KeyInfo) {
	fmt.Fprintln(w, "API key created successfully.")
	fmt.Fprintln(w, "Store this key securely, it cannot be retrieved again.")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Key:        %s\n", raw)
	fmt.Fprintf(w, "  Tenant:     %s\n", info.TenantID)
	fmt.Fprintf(w, "  Name:       %s\n", info.Name)
	fmt.Fprintf(w, "  Rate Limit: %d\n", info.RateLimit)
	fmt.Fprintf(w, "  Admin:      %t\n", info.IsAdmin)
	fmt.Fprintf(w, "  Expires:    %s\n", expiry(info))
}

func revokeCommand(c *cli.Context, keys keyStore) error {
	if err := keys.RevokeKey(c.Context, c.String("key")); err != nil {
		return fmt.Errorf("revoking key: %w", err)
	}
	fmt.Fprintln(c.App.Writer, "API key revoked successfully.")
	return nil
}

func listCommand(c *cli.Context, keys keyStore) error {
	list, err := keys.ListKeys(c.Context, c.String("tenant"))
	if err != nil {
		return fmt.Errorf("listing keys: %w", err)
	}
	printKeys(c.App.Writer, list)
	return nil
}

func printKeys(w io.Writer, keys []apikey.KeyInfo) {
	if len(keys) == 0 {
		fmt.Fprintln(w, "No active API keys.")
		return
	}
	fmt.Fprintf(w, "%-8s  %-20s  %-20s  %-10s  %-5s  %s\n", "ID", "Tenant", "Name", "Rate Limit", "Admin", "Expires")
	for _, k := range keys {
		fmt.Fprintf(w, "%-8s  %-20s  %-20s  %-10d  %-5t  %s\n", k.ID, k.TenantID, k.Name, k.RateLimit, k.IsAdmin, expiry(&k))
	}
	fmt.Fprintf(w, "\nTotal: %d active key(s)\n", len(keys))
}

func expiry(k *apikey.KeyInfo) string {
	if k.ExpiresAt == nil {
		return "never"
	}
	return k.ExpiresAt.Format(time.RFC3339)
}
