package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edvin/safehouse/internal/cli"
)

// Version is set at build time.
var Version = "dev"

// app carries the global flags and output streams shared by all commands.
type app struct {
	out    io.Writer
	logger zerolog.Logger

	profile    string
	url        string
	apiKey     string
	tenant     string
	jsonOutput bool
	verbose    bool

	// store overrides the default profile store in tests.
	store *cli.Store
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "safehousectl",
		Short: "Operate tenant backups and security from the command line",
		Long: `safehousectl talks to the safehouse tenant API. It can:
  - create, restore, cancel and download backups
  - read and update backup and security settings
  - run security scans and resolve security events

Connection details come from --url/--api-key/--tenant, the SAFEHOUSE_URL,
SAFEHOUSE_API_KEY and SAFEHOUSE_TENANT environment variables, or a saved profile.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if a.verbose {
				level = zerolog.DebugLevel
			}
			a.logger = zerolog.New(zerolog.ConsoleWriter{Out: errOut, TimeFormat: "15:04:05"}).
				Level(level).With().Timestamp().Logger()
		},
		Version: Version,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVarP(&a.profile, "profile", "p", "", "saved profile to use (default: active profile)")
	root.PersistentFlags().StringVar(&a.url, "url", "", "API base URL")
	root.PersistentFlags().StringVar(&a.apiKey, "api-key", "", "API key")
	root.PersistentFlags().StringVarP(&a.tenant, "tenant", "t", "", "tenant ID")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "print raw JSON responses")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug output")

	root.AddCommand(
		a.profileCmd(),
		a.backupCmd(),
		a.settingsCmd(),
		a.securityCmd(),
		a.statsCmd(),
	)
	return root
}

func (a *app) profileStore() (*cli.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	return cli.DefaultStore()
}

// client resolves connection settings. Flags win over the environment,
// which wins over the selected profile.
func (a *app) client() (*cli.Client, error) {
	url := firstNonEmpty(a.url, os.Getenv("SAFEHOUSE_URL"))
	key := firstNonEmpty(a.apiKey, os.Getenv("SAFEHOUSE_API_KEY"))
	tenant := firstNonEmpty(a.tenant, os.Getenv("SAFEHOUSE_TENANT"))

	if url == "" || key == "" || tenant == "" {
		p, err := a.selectedProfile()
		if err != nil {
			return nil, err
		}
		if p != nil {
			a.logger.Debug().Str("profile", p.Name).Msg("using profile")
			url = firstNonEmpty(url, p.URL)
			key = firstNonEmpty(key, p.APIKey)
			tenant = firstNonEmpty(tenant, p.TenantID)
		}
	}

	var missing []string
	if url == "" {
		missing = append(missing, "url")
	}
	if tenant == "" {
		missing = append(missing, "tenant")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing %s: pass flags, set SAFEHOUSE_* variables or add a profile", strings.Join(missing, ", "))
	}
	a.logger.Debug().Str("url", url).Str("tenant", tenant).Msg("resolved connection")
	return cli.NewClient(url, key, tenant), nil
}

func (a *app) selectedProfile() (*cli.Profile, error) {
	store, err := a.profileStore()
	if err != nil {
		return nil, err
	}
	name := a.profile
	if name == "" {
		if name, err = store.Active(); err != nil || name == "" {
			return nil, err
		}
	}
	return store.Load(name)
}

// printJSON pretty-prints a raw response body.
func (a *app) printJSON(body json.RawMessage) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var errNotConfirmed = errors.New("refusing to continue without --yes")
