package ctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/dmitrijs2005/keeperbridge/internal/bridge"
	"github.com/dmitrijs2005/keeperbridge/internal/bridgeclient"
	"github.com/dmitrijs2005/keeperbridge/internal/buildinfo"
	"github.com/dmitrijs2005/keeperbridge/internal/common"
	"github.com/dmitrijs2005/keeperbridge/internal/cryptox"
	"github.com/dmitrijs2005/keeperbridge/internal/pairing"
	"github.com/dmitrijs2005/keeperbridge/internal/protocol"
)

var ErrUsage = errors.New("usage error")

const usage = `bridgectl manages a local keeperbridge.

Usage:
  bridgectl secret                       print a new random shared secret
  bridgectl handshake                    print the bridge's server id
  bridgectl pair [--secret-file F]       pair with the bridge and remember the pairing
  bridgectl logins <url>                 list credentials for url
  bridgectl lock                         lock the credential store
  bridgectl devices list                 list paired devices (reads the database)
  bridgectl devices forget <id>          revoke one pairing
  bridgectl devices forget-all           revoke every pairing
  bridgectl version

Flags:
`

type options struct {
	addr       string
	addrSet    bool
	statePath  string
	dbPath     string
	secretFile string
	pairingID  string
	timeout    time.Duration
}

func newFlagSet(name string, o *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&o.addr, "addr", "a", bridge.DefaultAddr, "bridge address")
	fs.StringVar(&o.statePath, "state", defaultStatePath(), "where the pairing is remembered")
	fs.StringVarP(&o.dbPath, "db", "d", "keeperbridge.db", "pairing database (devices commands)")
	fs.StringVar(&o.secretFile, "secret-file", "", "read the shared secret from this file instead of prompting")
	fs.StringVar(&o.pairingID, "pairing-id", "", "use this pairing id instead of the saved one")
	fs.DurationVar(&o.timeout, "timeout", 5*time.Second, "per-request timeout")
	return fs
}

// CLI holds the streams a command runs against.
type CLI struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

func New() *CLI {
	return &CLI{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// Run executes one bridgectl command. args excludes the program name.
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c.printUsage()
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	if cmd == "devices" {
		if len(rest) == 0 {
			return fmt.Errorf("%w: devices needs list, forget or forget-all", ErrUsage)
		}
		cmd, rest = "devices "+rest[0], rest[1:]
	}

	var o options
	fs := newFlagSet(cmd, &o)
	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			c.printUsage()
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	pos := fs.Args()
	o.addrSet = fs.Changed("addr")

	switch cmd {
	case "help", "-h", "--help":
		c.printUsage()
		return nil
	case "version":
		buildinfo.Print(c.Out)
		return nil
	case "secret":
		_, err := fmt.Fprintln(c.Out, cryptox.NewSharedSecret())
		return err
	case "handshake":
		return c.handshake(ctx, &o)
	case "pair":
		return c.pair(ctx, &o)
	case "logins":
		if len(pos) != 1 {
			return fmt.Errorf("%w: logins needs exactly one url", ErrUsage)
		}
		return c.logins(ctx, &o, pos[0])
	case "lock":
		return c.lock(ctx, &o)
	case "devices list":
		return c.devicesList(ctx, &o)
	case "devices forget":
		if len(pos) != 1 {
			return fmt.Errorf("%w: devices forget needs a pairing id", ErrUsage)
		}
		return c.devicesForget(ctx, &o, pos[0])
	case "devices forget-all":
		return c.devicesForgetAll(ctx, &o)
	}
	return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
}

func (c *CLI) printUsage() {
	var o options
	fmt.Fprint(c.Err, usage)
	fmt.Fprint(c.Err, newFlagSet("bridgectl", &o).FlagUsages())
}

func (o *options) client() *bridgeclient.Client {
	return bridgeclient.New(o.addr).WithTimeout(o.timeout)
}

func (c *CLI) handshake(ctx context.Context, o *options) error {
	id, err := o.client().Handshake(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.Out, id)
	return err
}

func (c *CLI) pair(ctx context.Context, o *options) error {
	client := o.client()

	serverID, err := client.Handshake(ctx)
	if err != nil {
		return err
	}

	secret, err := c.sharedSecret(o)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)
	if len(secret) == 0 {
		return errors.New("shared secret is empty")
	}

	pairingID, err := client.Associate(ctx, secret)
	if err != nil {
		if bridgeclient.IsCode(err, protocol.CodePairingRejected) {
			return errors.New("pairing rejected: the shared secret does not match")
		}
		return err
	}

	st := &state{Addr: o.addr, PairingID: pairingID, ServerIDHash: serverID}
	if err := saveState(o.statePath, st); err != nil {
		return fmt.Errorf("paired as %s but could not save it: %w", pairingID, err)
	}
	_, err = fmt.Fprintf(c.Out, "paired: %s\n", pairingID)
	return err
}

func (c *CLI) sharedSecret(o *options) ([]byte, error) {
	if o.secretFile == "" {
		return readSecret(c.In, c.Err)
	}
	f, err := os.Open(o.secretFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readSecret(f, c.Err)
}

// pairing returns the pairing id to use and warns when the bridge no longer
// has the identity it had at pairing time. Without --addr, the address
// saved at pairing time is used.
func (c *CLI) pairing(ctx context.Context, o *options) (string, error) {
	if o.pairingID != "" {
		return o.pairingID, nil
	}
	st, err := loadState(o.statePath)
	if err != nil {
		return "", err
	}
	if !o.addrSet && st.Addr != "" {
		o.addr = st.Addr
	}
	if st.ServerIDHash != "" {
		if id, err := o.client().Handshake(ctx); err == nil && id != st.ServerIDHash {
			fmt.Fprintln(c.Err, "warning: bridge identity changed since pairing")
		}
	}
	return st.PairingID, nil
}

func (c *CLI) logins(ctx context.Context, o *options, url string) error {
	pairingID, err := c.pairing(ctx, o)
	if err != nil {
		return err
	}
	entries, err := o.client().GetLogins(ctx, url, pairingID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLOGIN\tOTP")
	for _, e := range entries {
		otp := e.OTPCode
		if otp == "" {
			otp = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.Login, otp)
	}
	return tw.Flush()
}

func (c *CLI) lock(ctx context.Context, o *options) error {
	pairingID, err := c.pairing(ctx, o)
	if err != nil {
		return err
	}
	if err := o.client().Lock(ctx, pairingID); err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.Out, "locked")
	return err
}

func (c *CLI) openStore(ctx context.Context, o *options) (*pairing.SQLiteStore, error) {
	if _, err := os.Stat(o.dbPath); err != nil {
		return nil, fmt.Errorf("pairing database %s: %w", o.dbPath, err)
	}
	return pairing.Open(ctx, o.dbPath)
}

func (c *CLI) devicesList(ctx context.Context, o *options) error {
	store, err := c.openStore(ctx, o)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPAIRED AT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\n", r.ID, r.CreatedAt.Local().Format(time.RFC3339))
	}
	return tw.Flush()
}

func (c *CLI) devicesForget(ctx context.Context, o *options, id string) error {
	store, err := c.openStore(ctx, o)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(ctx, id); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.Out, "forgot %s\n", id)
	return err
}

func (c *CLI) devicesForgetAll(ctx context.Context, o *options) error {
	store, err := c.openStore(ctx, o)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.DeleteAll(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.Out, "forgot %d device(s)\n", n)
	return err
}
