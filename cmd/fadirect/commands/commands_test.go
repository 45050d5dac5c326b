package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madcrx/FADirect/internal/app"
)

const testPassphrase = "Correct-Horse-9-Battery"

type account struct {
	home string
	user string
	dsn  string
}

func (a account) run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := NewRoot(app.NewViper())
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{
		"--home", a.home,
		"--passphrase", testPassphrase,
		"--user", a.user,
		"--dsn", a.dsn,
		"--log-level", "error",
	}, args...))
	require.NoError(t, root.ExecuteContext(context.Background()), out.String())
	return out.String()
}

var fingerprintLine = regexp.MustCompile(`Fingerprint: ([0-9a-f ]+)\n`)

func TestCLIConversation(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "docs.db")
	alice := account{home: t.TempDir(), user: "alice", dsn: dsn}
	bob := account{home: t.TempDir(), user: "bob", dsn: dsn}

	out := alice.run(t, "init")
	require.Contains(t, out, "Identity created for alice.")
	m := fingerprintLine.FindStringSubmatch(out)
	require.Len(t, m, 2)
	aliceFP := m[1]

	// Keys survive across invocations through the file vault.
	out = alice.run(t, "fingerprint")
	require.Contains(t, out, "Fingerprint: "+aliceFP)
	require.Contains(t, out, "Identity key: ")

	out = alice.run(t, "prekeys", "status")
	require.Contains(t, out, "One-time prekeys: 100 local, 100 published")

	bob.run(t, "init")
	out = alice.run(t, "send", "arr-1", "bob", "hello")
	require.Contains(t, out, "sent ")

	out = bob.run(t, "recv", "arr-1")
	require.Contains(t, out, "[alice] hello")

	out = bob.run(t, "trust", "alice")
	require.Contains(t, out, "Fingerprint: "+aliceFP)

	out = bob.run(t, "prekeys", "status")
	require.Contains(t, out, "One-time prekeys: 99 local, 99 published")

	out = bob.run(t, "rotate")
	require.Contains(t, out, "signed prekey 1 published")

	out = bob.run(t, "prekeys", "replenish", "-n", "3")
	require.Contains(t, out, "published 3 one-time prekeys")

	out = bob.run(t, "reset", "alice")
	require.Contains(t, out, "sessions with alice removed")
}

func TestCLIRejectsWeakPassphraseForNewVault(t *testing.T) {
	var out bytes.Buffer
	root := NewRoot(app.NewViper())
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--home", t.TempDir(), "--passphrase", "weak", "--user", "alice", "init"})
	require.Error(t, root.ExecuteContext(context.Background()))
}
