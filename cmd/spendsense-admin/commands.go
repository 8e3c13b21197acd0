package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/app"
	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	"github.com/aussiebroadwan/spendsense/internal/auth/service"
	"github.com/aussiebroadwan/spendsense/pkg/slogx"
)

const usage = `usage: spendsense-admin <command> [flags]

commands:
  seed                         create the demo users if absent
  useradd [-role R] <username> create an account (prompts for a password)
  users                        list every account
  passwd <username>            set a new password (prompts)
  unlock <username>            clear failed attempts and any lock

Configuration is read from the same AUTH_* variables as the server.
`

// cli carries one invocation's streams and services.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	prompt *prompter

	credentials *service.CredentialService
	guard       *service.AccountGuard
}

type command func(ctx context.Context, c *cli, args []string) error

var commands = map[string]command{
	"seed":    cmdSeed,
	"useradd": cmdUserAdd,
	"users":   cmdUsers,
	"passwd":  cmdPasswd,
	"unlock":  cmdUnlock,
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	cfg := app.LoadConfig()
	logger := slogx.New(slogx.Config{
		Service: "spendsense-admin",
		Version: app.BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  "text",
		Output:  stderr,
	})
	ctx = slogx.WithContext(ctx, logger)

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return 1
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing database", "error", err)
		}
	}()

	c := &cli{
		stdout:      stdout,
		stderr:      stderr,
		prompt:      newPrompter(stdin, stderr),
		credentials: &service.CredentialService{Store: st},
		guard:       service.NewAccountGuard(st),
	}

	if err := cmd(ctx, c, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(stderr, "%s: %s\n", args[0], describe(err))
		return 1
	}
	return 0
}

// describe turns service errors into operator-facing text.
func describe(err error) string {
	var policy *service.PolicyError
	switch {
	case errors.As(err, &policy):
		return "password " + policy.Reason
	case errors.Is(err, service.ErrDuplicateUsername):
		return "username already exists"
	case errors.Is(err, service.ErrUserNotFound):
		return "no such user"
	case errors.Is(err, service.ErrPasswordMismatch):
		return "passwords do not match"
	case errors.Is(err, service.ErrInvalidRole):
		return fmt.Sprintf("role must be one of %s", roleList())
	}
	return err.Error()
}

func roleList() string {
	names := make([]string, len(domain.Roles))
	for i, r := range domain.Roles {
		names[i] = r.String()
	}
	return strings.Join(names, ", ")
}

func newFlagSet(c *cli, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// oneUsername parses fs and returns its single positional argument.
func oneUsername(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one username, got %d", fs.NArg())
	}
	username := strings.TrimSpace(fs.Arg(0))
	if username == "" {
		return "", service.ErrEmptyUsername
	}
	return username, nil
}

func cmdSeed(ctx context.Context, c *cli, args []string) error {
	if err := newFlagSet(c, "seed").Parse(args); err != nil {
		return err
	}

	created, err := c.credentials.SeedIfAbsent(ctx, domain.DemoUsers())
	if err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "seeded %d user(s)\n", created)
	return nil
}

func cmdUserAdd(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet(c, "useradd")
	role := fs.String("role", domain.RoleViewer.String(), "role: "+roleList())

	username, err := oneUsername(fs, args)
	if err != nil {
		return err
	}
	if !domain.Role(*role).Valid() {
		return service.ErrInvalidRole
	}

	password, err := newPassword(c)
	if err != nil {
		return err
	}

	user, err := c.credentials.Create(ctx, username, password, domain.Role(*role))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "created %s (%s)\n", user.Username, user.Role)
	return nil
}

func cmdPasswd(ctx context.Context, c *cli, args []string) error {
	username, err := oneUsername(newFlagSet(c, "passwd"), args)
	if err != nil {
		return err
	}

	// Fail before prompting when the account does not exist.
	if _, err := c.credentials.Get(ctx, username); err != nil {
		return err
	}

	password, err := newPassword(c)
	if err != nil {
		return err
	}

	if err := c.credentials.SetPassword(ctx, username, password); err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "password updated for %s\n", username)
	return nil
}

func cmdUnlock(ctx context.Context, c *cli, args []string) error {
	username, err := oneUsername(newFlagSet(c, "unlock"), args)
	if err != nil {
		return err
	}

	if err := c.guard.Reset(ctx, username); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("account unlocked", slog.String("username", username))
	fmt.Fprintf(c.stdout, "unlocked %s\n", username)
	return nil
}

func cmdUsers(ctx context.Context, c *cli, args []string) error {
	if err := newFlagSet(c, "users").Parse(args); err != nil {
		return err
	}

	users, err := c.credentials.ListAll(ctx)
	if err != nil {
		return err
	}
	total, err := c.credentials.Count(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tROLE\tFAILED\tLOCKED UNTIL\tPASSWORD SET")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			u.Username, u.Role, u.FailedAttempts, formatTime(u.LockUntil), formatTime(u.PasswordLastSet))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "%d user(s)\n", total)
	return nil
}

// newPassword prompts twice and applies the password policy.
func newPassword(c *cli) (string, error) {
	password, confirm, err := c.prompt.NewPassword()
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", service.ErrPasswordMismatch
	}
	if err := service.ValidatePassword(password); err != nil {
		return "", err
	}
	return password, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
