// Command tally serves the tally counter page.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/ryanhamamura/tally/counter"
	"github.com/ryanhamamura/tally/live"
	"github.com/ryanhamamura/tally/live/livenats"
)

const version = "v0.1.0"

// rendersStream captures counter.SubjectRenders for replay.
const rendersStream = "TALLY_RENDERS"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tally",
		Short:         "Serve the tally counter page",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve,
	}
	registerFlags(root.Flags())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "tally "+version)
		},
	})
	return root
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	opts := cfg.options()

	if cfg.SessionDB != "" {
		db, err := sql.Open("sqlite3", cfg.SessionDB)
		if err != nil {
			return fmt.Errorf("open session db: %w", err)
		}
		defer db.Close()
		sm, err := live.NewSQLiteSessionManager(db)
		if err != nil {
			return err
		}
		opts.SessionManager = sm
	}

	if cfg.NATSDir != "" {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		ns, err := livenats.New(ctx, cfg.NATSDir)
		if err != nil {
			return err
		}
		if err := ns.EnsureStream(rendersStream, counter.SubjectRenders); err != nil {
			ns.Close()
			return err
		}
		opts.PubSub = ns
	}

	return newServer(opts).Start()
}

// newServer builds the tally server: the counter page at "/" and a health
// check at "/healthz".
func newServer(opts live.Options) *live.Server {
	s := live.New()
	s.Config(opts)
	s.Page("/", counter.App())
	s.HTTPServeMux().HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	return s
}
