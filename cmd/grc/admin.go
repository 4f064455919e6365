package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/grcplatform/grc/internal/config"
	"github.com/grcplatform/grc/internal/domain/tenant"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/port/messagequeue"
	"github.com/grcplatform/grc/internal/tenantctx"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-tenant":
		return runAdminCreateTenant(args[1:])
	case "create-user":
		return runAdminCreateUser(args[1:])
	case "list-tenants":
		return runAdminListTenants(args[1:])
	case "set-status":
		return runAdminSetStatus(args[1:])
	case "tail-actions":
		return runAdminTailActions(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: grc admin <command> [options]

Commands:
  create-tenant   Create a tenant and seed its consent configurations
  create-user     Create a user in a tenant
  list-tenants    List all tenants
  set-status      Change a tenant's lifecycle status
  tail-actions    Stream a tenant's action log (requires NATS)
  help            Show this help message

Examples:
  grc admin create-tenant --subdomain acme --tier professional
  grc admin create-user --tenant acme --username alice --email alice@acme.com --role admin
  grc admin set-status --tenant acme --status suspended
  grc admin tail-actions --tenant acme
`)
}

// adminFlags returns a flag set carrying the shared --config flag.
func adminFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", config.DefaultConfigFile, "path to YAML config file")
	return fs, path
}

// loadAdminDeps wires the services without HTTP. The returned context is a
// bootstrap context with no tenant bound.
func loadAdminDeps(configPath string) (context.Context, *deps, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	ctx := tenantctx.WithBootstrap(context.Background())
	d, err := buildDeps(ctx, cfg, nil, false)
	if err != nil {
		return nil, nil, err
	}
	return ctx, d, nil
}

func runAdminCreateTenant(args []string) error {
	fs, configPath := adminFlags("create-tenant")
	subdomain := fs.String("subdomain", "", "tenant subdomain (required)")
	tier := fs.String("tier", string(tenant.TierStarter), "subscription tier")
	status := fs.String("status", string(tenant.StatusActive), "initial status")
	trialDays := fs.Int("trial-days", 0, "trial length in days (trial status only)")
	contact := fs.String("contact-email", "", "primary contact email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subdomain == "" {
		return errors.New("--subdomain is required")
	}

	ctx, d, err := loadAdminDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	t, err := d.tenants.Create(ctx, tenant.CreateRequest{
		Subdomain:           *subdomain,
		SubscriptionTier:    tenant.Tier(*tier),
		Status:              tenant.Status(*status),
		TrialDays:           *trialDays,
		PrimaryContactEmail: *contact,
	})
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Tenant created: %s (id=%d, tier=%s, status=%s)\n",
		t.Subdomain, t.ID, t.SubscriptionTier, t.Status)
	return nil
}

func runAdminCreateUser(args []string) error {
	fs, configPath := adminFlags("create-user")
	sub := fs.String("tenant", "", "tenant subdomain (required)")
	username := fs.String("username", "", "login name (required)")
	email := fs.String("email", "", "email address (required)")
	name := fs.String("name", "", "display name")
	role := fs.String("role", string(user.RoleViewer), "role: admin, editor or viewer")
	password := fs.String("password", "", "password (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sub == "" || *username == "" || *email == "" {
		return errors.New("--tenant, --username and --email are required")
	}

	pass := *password
	if pass == "" {
		var err error
		pass, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if pass != confirm {
			return errors.New("passwords do not match")
		}
	}

	ctx, d, err := loadAdminDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	t, err := d.tenants.GetBySubdomain(ctx, *sub)
	if err != nil {
		return fmt.Errorf("tenant %q: %w", *sub, err)
	}
	ctx, exit := tenantctx.Enter(ctx, t.ID)
	defer exit()

	u, err := d.users.Create(ctx, nil, user.CreateRequest{
		Username: *username,
		Name:     *name,
		Email:    *email,
		Password: pass,
		Role:     user.Role(*role),
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(os.Stderr, "User created: %s (id=%d, tenant=%s, role=%s)\n", u.Username, u.ID, t.Subdomain, u.Role)
	return nil
}

func runAdminListTenants(args []string) error {
	fs, configPath := adminFlags("list-tenants")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, d, err := loadAdminDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	tenants, err := d.tenants.List(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	if len(tenants) == 0 {
		fmt.Println("No tenants found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBDOMAIN\tTIER\tSTATUS\tMAX USERS\tCREATED")
	for i := range tenants {
		t := &tenants[i]
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			t.ID, t.Subdomain, t.SubscriptionTier, t.Status, t.MaxUsers, t.CreatedAt.Format(time.DateOnly))
	}
	return w.Flush()
}

func runAdminSetStatus(args []string) error {
	fs, configPath := adminFlags("set-status")
	sub := fs.String("tenant", "", "tenant subdomain (required)")
	status := fs.String("status", "", "trial, active, suspended or cancelled (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sub == "" || *status == "" {
		return errors.New("--tenant and --status are required")
	}

	ctx, d, err := loadAdminDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	t, err := d.tenants.GetBySubdomain(ctx, *sub)
	if err != nil {
		return fmt.Errorf("tenant %q: %w", *sub, err)
	}
	t, err = d.tenants.SetStatus(ctx, t.ID, tenant.Status(*status))
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Tenant %s is now %s\n", t.Subdomain, t.Status)
	return nil
}

func runAdminTailActions(args []string) error {
	fs, configPath := adminFlags("tail-actions")
	sub := fs.String("tenant", "", "tenant subdomain (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sub == "" {
		return errors.New("--tenant is required")
	}

	ctx, d, err := loadAdminDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()
	if d.queue == nil {
		return errors.New("tail-actions requires nats.url")
	}

	t, err := d.tenants.GetBySubdomain(ctx, *sub)
	if err != nil {
		return fmt.Errorf("tenant %q: %w", *sub, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	cancel, err := d.queue.Subscribe(ctx, messagequeue.TenantActionsSubject(t.ID),
		func(_ context.Context, _ string, data []byte) error {
			var p messagequeue.ActionLoggedPayload
			if err := json.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("decode action: %w", err)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				p.OccurredAt.Format(time.RFC3339), p.LogLevel, p.Module, p.ActionType, p.Description)
			return w.Flush()
		})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer cancel()

	fmt.Fprintf(os.Stderr, "Streaming actions for %s, press Ctrl+C to stop\n", t.Subdomain)
	<-ctx.Done()
	return nil
}

// promptPassword reads a password from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // syscall.Stdin is int on unix, Handle on windows
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
