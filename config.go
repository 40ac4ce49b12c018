package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	adminKey       string
	bind           string
	connTimeout    time.Duration
	dbPath         string
	gridSize       int
	moderationURL  string
	port           int
	prefix         string
	profile        bool
	sessionSecret  string
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
	viewerSecret   string
	wordCategories []string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.gridSize < 3 || c.gridSize > 9 || c.gridSize%2 == 0 {
		return fmt.Errorf("invalid grid size (must be an odd number between 3-9 inclusive): %d", c.gridSize)
	}
	if c.sessionSecret != "" && c.sessionSecret == c.viewerSecret {
		return errors.New("--session-secret and --viewer-secret must differ")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LIVEBINGO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "livebingo",
		Short:         "A live-event bingo server with real-time leaderboards over websockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.adminKey, "admin-key", "", "key required for administrative game actions (env: LIVEBINGO_ADMIN_KEY)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: LIVEBINGO_BIND)")
	fs.DurationVar(&cfg.connTimeout, "connection-timeout", 30*time.Minute, "time before abandoned push connections are reaped (env: LIVEBINGO_CONNECTION_TIMEOUT)")
	fs.StringVar(&cfg.dbPath, "db", "./livebingo.db", "path to sqlite database (env: LIVEBINGO_DB)")
	fs.IntVar(&cfg.gridSize, "grid-size", 5, "card grid size, must be odd (env: LIVEBINGO_GRID_SIZE)")
	fs.StringVar(&cfg.moderationURL, "moderation-url", "", "url of the nickname moderation service, empty to approve all (env: LIVEBINGO_MODERATION_URL)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: LIVEBINGO_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: LIVEBINGO_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: LIVEBINGO_PROFILE)")
	fs.StringVar(&cfg.sessionSecret, "session-secret", "", "hmac secret for participant tokens, random if empty (env: LIVEBINGO_SESSION_SECRET)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: LIVEBINGO_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: LIVEBINGO_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: LIVEBINGO_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: LIVEBINGO_VERSION)")
	fs.StringVar(&cfg.viewerSecret, "viewer-secret", "", "hmac secret for viewer tokens, random if empty (env: LIVEBINGO_VIEWER_SECRET)")
	fs.StringSliceVar(&cfg.wordCategories, "word-categories", []string{"conference"}, "word catalog categories used for new games (env: LIVEBINGO_WORD_CATEGORIES)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("livebingo v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
