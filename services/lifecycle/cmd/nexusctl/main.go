// Command nexusctl is the operator tool for the lifecycle service: schema
// migration, catalog import, credentials, lifecycle inspection and API-driven
// transitions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nexuscrm/nexus/pkg/db"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/store"
)

var Version = "dev"

type app struct {
	configPath string
	v          *viper.Viper
	out        io.Writer
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		printSummary(os.Stderr, "FAIL", map[string]any{"reason": err.Error()})
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:           "nexusctl",
		Short:         "Operate the merchant lifecycle service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.nexus/config.yaml)")
	root.PersistentFlags().String("database-url", "", "Postgres DSN (overrides config and env)")
	root.PersistentFlags().String("server", "", "lifecycle API base URL for commands that go through the service")
	root.PersistentFlags().String("token", "", "operator bearer token")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		v, err := newViper(a.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		for key, flag := range map[string]string{"database_url": "database-url", "server_url": "server", "token": "token"} {
			if err := v.BindPFlag(key, root.PersistentFlags().Lookup(flag)); err != nil {
				return err
			}
		}
		a.v = v
		return nil
	}

	root.AddCommand(
		a.migrateCmd(),
		a.catalogCmd(),
		a.merchantCmd(),
		a.credentialCmd(),
		a.readinessCmd(),
		a.previewCmd(),
		a.historyCmd(),
		a.transitionCmd(),
	)
	return root
}

// withStore opens a pool for one command invocation.
func (a *app) withStore(ctx context.Context, fn func(st *store.Store) error) error {
	cfg, err := loadCLIConfig(a.v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	pool, err := db.Connect(ctx, db.Options{DSN: cfg.DatabaseURL, MaxConns: int32(cfg.MaxConns)})
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(store.New(pool))
}

func printSummary(w io.Writer, status string, fields map[string]any) {
	out := map[string]any{"status": status, "timestamp_utc": time.Now().UTC().Format(time.RFC3339)}
	for k, v := range fields {
		out[k] = v
	}
	b, _ := json.Marshal(out)
	fmt.Fprintln(w, string(b))
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
