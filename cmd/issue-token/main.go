// Command issue-token prints a signed session token for local testing and
// for service accounts. It signs with the same auth settings the server
// verifies with.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cpcomms/dispatch/internal/config"
	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/service/auth"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr, config.Load); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "issue-token:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer, load func() (*config.Config, error)) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	uid := fs.String("uid", "", "user id carried in the token (required)")
	role := fs.String("role", "", "role: office, factory_office, store_office, factory, driver_crown, driver_electric")
	fleet := fs.String("fleet", "", "fleet id for driver roles")
	ttl := fs.Duration("ttl", 0, "token lifetime; defaults to auth.token_lifetime_minutes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	actor := domain.Actor{ID: *uid, Role: domain.Role(*role), Fleet: *fleet}
	if actor.ID == "" {
		return errors.New("-uid is required")
	}
	if !domain.KnownRole(actor.Role) {
		return fmt.Errorf("unknown role %q", *role)
	}
	if *ttl < 0 {
		return errors.New("-ttl must be positive")
	}

	cfg, err := load()
	if err != nil {
		return err
	}
	svc, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return err
	}

	lifetime := *ttl
	if lifetime == 0 {
		lifetime = time.Duration(cfg.Auth.TokenLifetimeMinutes) * time.Minute
	}
	token, err := svc.GenerateTokenWithLifetime(context.Background(), actor, lifetime)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}
