package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mind-engage/markingsheet/internal/auth"
	"github.com/mind-engage/markingsheet/internal/config"
	"github.com/mind-engage/markingsheet/internal/db"
	"github.com/mind-engage/markingsheet/internal/sheet"
)

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for ADMIN_PASS_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

type importFlags struct {
	driver string
	dsn    string
}

func newImportCmd() *cobra.Command {
	f := &importFlags{}
	cmd := &cobra.Command{
		Use:   "import <sheet.yaml>...",
		Short: "Create marking sheets from definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if f.driver == "" {
				f.driver = cfg.DBDriver
			}
			if f.dsn == "" {
				f.dsn = cfg.DBDSN
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			dbh, err := db.Open(ctx, db.Driver(f.driver), f.dsn)
			if err != nil {
				return err
			}
			defer dbh.Close()

			store := sheet.NewSQLStore(dbh, cfg.DefaultSheetPassword)
			for _, path := range args {
				d, err := sheet.LoadFile(path)
				if err != nil {
					return exitError(3, "%v", err)
				}
				sh, err := store.Create(ctx, d)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d items\n", sh.ID, sh.Name, len(sh.Items))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.driver, "db-driver", "", "sqlite or postgres (default: DB_DRIVER)")
	flags.StringVar(&f.dsn, "dsn", "", "Database DSN (default: DB_DSN)")
	return cmd
}
