package system

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/bayslots/internal/cli"
	"github.com/julianstephens/bayslots/internal/keyring"
)

// KeyringSetCmd stores the database password in the OS keyring
type KeyringSetCmd struct {
	Password string `arg:"" optional:"" help:"Password to store. Read from stdin when omitted, so it stays out of shell history."`
}

func (cmd *KeyringSetCmd) Run(ctx *cli.Context) error {
	pw := cmd.Password
	if pw == "" {
		fmt.Fprint(ctx.Stdout(), "Database password: ")
		line, err := bufio.NewReader(ctx.Stdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		pw = strings.TrimRight(line, "\r\n")
		fmt.Fprintln(ctx.Stdout())
	}

	if err := keyring.SetPassword(pw); err != nil {
		return err
	}
	fmt.Fprintln(ctx.Stdout(), cli.OKStyle.Render("✓ Database password stored in OS keyring"))
	fmt.Fprintln(ctx.Stdout(), "  BAYSLOTS_DATABASE_PASSWORD can now be left unset")
	return nil
}

// KeyringGetCmd reports whether a password is stored, masked unless --show
type KeyringGetCmd struct {
	Show bool `help:"Print the stored password in clear text."`
}

func (cmd *KeyringGetCmd) Run(ctx *cli.Context) error {
	pw, err := keyring.GetPassword()
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no password found in keyring, use 'bayslots keyring set' to store one")
		}
		return err
	}

	if cmd.Show {
		fmt.Fprintln(ctx.Stdout(), pw)
		return nil
	}
	fmt.Fprintf(ctx.Stdout(), "Database password stored in keyring: %s\n", mask(pw))
	return nil
}

// KeyringDeleteCmd removes the database password from the OS keyring
type KeyringDeleteCmd struct{}

func (cmd *KeyringDeleteCmd) Run(ctx *cli.Context) error {
	if err := keyring.DeletePassword(); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no password found in keyring")
		}
		return err
	}
	fmt.Fprintln(ctx.Stdout(), cli.OKStyle.Render("✓ Database password deleted from OS keyring"))
	return nil
}

// KeyringStatusCmd checks the availability of the OS keyring
type KeyringStatusCmd struct{}

func (cmd *KeyringStatusCmd) Run(ctx *cli.Context) error {
	w := ctx.Stdout()
	if !keyring.IsAvailable() {
		fmt.Fprintln(w, cli.FailStyle.Render("❌ OS keyring is not available on this system"))
		return keyring.ErrKeyringUnavailable
	}
	fmt.Fprintln(w, cli.OKStyle.Render("✓ OS keyring is available"))

	if _, err := keyring.GetPassword(); err == nil {
		fmt.Fprintln(w, cli.OKStyle.Render("✓ Database password is stored in keyring"))
	} else if errors.Is(err, keyring.ErrNotFound) {
		fmt.Fprintln(w, cli.MutedStyle.Render("ℹ No database password stored in keyring"))
	}
	return nil
}

func mask(pw string) string {
	if len(pw) <= 2 {
		return strings.Repeat("*", len(pw))
	}
	return pw[:1] + strings.Repeat("*", len(pw)-2) + pw[len(pw)-1:]
}
