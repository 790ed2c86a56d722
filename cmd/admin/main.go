// Command admin manages the console administrator account from a shell.
//
//	admin create <email>
//	admin reset-password <email>
//	admin enroll-totp [-qr file.png] <email>
//	admin disable-totp <email>
//
// Passwords are read from the terminal, or from ADMIN_PASSWORD when stdin is
// not a terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BradenHooton/campusgate/internal/auth"
	"github.com/BradenHooton/campusgate/internal/config"
	"github.com/BradenHooton/campusgate/internal/database"
	"github.com/BradenHooton/campusgate/internal/models"
	"github.com/BradenHooton/campusgate/internal/repositories"
	"github.com/BradenHooton/campusgate/internal/services"
	pkgauth "github.com/BradenHooton/campusgate/pkg/auth"
	pkglogger "github.com/BradenHooton/campusgate/pkg/logger"
	"golang.org/x/term"
)

const usage = `usage: admin <command> [flags] <email>

commands:
  create           create the administrator account
  reset-password   set a new password without a one-time code
  enroll-totp      register an authenticator app (-qr writes a PNG)
  disable-totp     remove the authenticator requirement
`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:], logger); err != nil {
		fmt.Fprintf(os.Stderr, "admin: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	qrPath := fs.String("qr", "", "write the provisioning QR code to this PNG file (enroll-totp)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one email argument is required")
	}
	email := fs.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	dbCfg := config.LoadDatabase()
	db, err := database.NewConnection(ctx, &dbCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	totpManager, err := loadTOTPManager()
	if err != nil {
		return err
	}

	accounts := services.NewAccountService(
		repositories.NewAdminRepository(db),
		totpManager,
		0,
		logger,
		pkglogger.NewAuditLogger(logger),
	)

	switch command {
	case "create":
		password, err := readPassword("New password: ")
		if err != nil {
			return err
		}
		admin, err := accounts.Create(ctx, email, password)
		if err != nil {
			return describe(err)
		}
		fmt.Printf("created administrator %s (%s)\n", admin.Email, admin.ID)

	case "reset-password":
		password, err := readPassword("New password: ")
		if err != nil {
			return err
		}
		if err := accounts.SetPassword(ctx, email, password); err != nil {
			return describe(err)
		}
		fmt.Println("password updated")

	case "enroll-totp":
		enrollment, err := accounts.EnrollTOTP(ctx, email)
		if err != nil {
			return describe(err)
		}
		fmt.Printf("secret:  %s\nurl:     %s\n", enrollment.Secret, enrollment.ProvisioningURL)
		if *qrPath != "" {
			png, err := auth.QRCodePNG(enrollment.ProvisioningURL, 256)
			if err != nil {
				return err
			}
			if err := os.WriteFile(*qrPath, png, 0o600); err != nil {
				return fmt.Errorf("failed to write QR code: %w", err)
			}
			fmt.Printf("qr code: %s\n", *qrPath)
		}

	case "disable-totp":
		if err := accounts.DisableTOTP(ctx, email); err != nil {
			return describe(err)
		}
		fmt.Println("authenticator removed")

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

// loadTOTPManager reads TOTP_ENCRYPTION_KEY without requiring the rest of the
// server configuration. A missing key yields a nil manager.
func loadTOTPManager() (*auth.TOTPManager, error) {
	raw := os.Getenv("TOTP_ENCRYPTION_KEY")
	if raw == "" {
		return nil, nil
	}
	key, err := config.DecodeTOTPKey(raw)
	if err != nil {
		return nil, err
	}
	issuer := os.Getenv("TOTP_ISSUER")
	if issuer == "" {
		issuer = config.DefaultTOTPIssuer
	}
	return auth.NewTOTPManager(key, issuer)
}

func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if p := os.Getenv("ADMIN_PASSWORD"); p != "" {
			return p, nil
		}
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Fprint(os.Stderr, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func describe(err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return errors.New("no administrator with that email")
	case errors.Is(err, models.ErrConflict):
		return errors.New("an administrator with that email already exists")
	case errors.Is(err, models.ErrWeakPassword):
		return fmt.Errorf("password rejected: at least %d characters with upper, lower, digit and symbol", pkgauth.MinPasswordLen)
	default:
		return err
	}
}
