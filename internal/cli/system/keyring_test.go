package system

import (
	"bytes"
	"strings"
	"testing"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/julianstephens/bayslots/internal/cli"
	"github.com/julianstephens/bayslots/internal/keyring"
)

func keyringContext(input string) (*cli.Context, *bytes.Buffer) {
	var out bytes.Buffer
	return &cli.Context{Out: &out, In: strings.NewReader(input)}, &out
}

func TestKeyringSetCmd(t *testing.T) {
	gokeyring.MockInit()
	defer func() { _ = keyring.DeletePassword() }()

	tests := []struct {
		name      string
		arg       string
		stdin     string
		want      string
		wantError bool
	}{
		{name: "argument", arg: "s3cret", want: "s3cret"},
		{name: "stdin", stdin: "from-stdin\n", want: "from-stdin"},
		{name: "stdin without newline", stdin: "no-newline", want: "no-newline"},
		{name: "stdin CRLF", stdin: "windows\r\n", want: "windows"},
		{name: "empty", stdin: "\n", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _ := keyringContext(tt.stdin)
			err := (&KeyringSetCmd{Password: tt.arg}).Run(ctx)
			if (err != nil) != tt.wantError {
				t.Fatalf("Run() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				return
			}
			got, err := keyring.GetPassword()
			if err != nil {
				t.Fatalf("GetPassword() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("stored %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyringGetCmd(t *testing.T) {
	gokeyring.MockInit()
	defer func() { _ = keyring.DeletePassword() }()

	ctx, _ := keyringContext("")
	if err := (&KeyringGetCmd{}).Run(ctx); err == nil {
		t.Error("expected an error when no password is stored")
	}

	if err := keyring.SetPassword("hunter22"); err != nil {
		t.Fatal(err)
	}

	ctx, out := keyringContext("")
	if err := (&KeyringGetCmd{}).Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.Contains(out.String(), "hunter22") || !strings.Contains(out.String(), "h******2") {
		t.Errorf("password should be masked, got %q", out.String())
	}

	ctx, out = keyringContext("")
	if err := (&KeyringGetCmd{Show: true}).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "hunter22" {
		t.Errorf("--show output = %q", out.String())
	}
}

func TestKeyringDeleteCmd(t *testing.T) {
	gokeyring.MockInit()

	ctx, _ := keyringContext("")
	if err := (&KeyringDeleteCmd{}).Run(ctx); err == nil {
		t.Error("expected an error deleting a missing password")
	}

	if err := keyring.SetPassword("pw"); err != nil {
		t.Fatal(err)
	}
	if err := (&KeyringDeleteCmd{}).Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := keyring.GetPassword(); err == nil {
		t.Error("password still present after delete")
	}
}

func TestKeyringStatusCmd(t *testing.T) {
	gokeyring.MockInit()
	defer func() { _ = keyring.DeletePassword() }()

	ctx, out := keyringContext("")
	if err := (&KeyringStatusCmd{}).Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "No database password stored") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestMask(t *testing.T) {
	tests := map[string]string{
		"":       "",
		"a":      "*",
		"ab":     "**",
		"abc":    "a*c",
		"secret": "s****t",
	}
	for in, want := range tests {
		if got := mask(in); got != want {
			t.Errorf("mask(%q) = %q, want %q", in, got, want)
		}
	}
}
