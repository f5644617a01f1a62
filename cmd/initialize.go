package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"epserver/stores"

	"github.com/spf13/cobra"
)

type initializeFlags struct {
	dropAll bool
	yes     bool
}

func newInitializeCmd() *cobra.Command {
	flags := new(initializeFlags)
	c := &cobra.Command{
		Use:   "initialize [--drop-all] [--yes]",
		Short: "Create the documents table in DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := stores.OpenDatabase(cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if flags.dropAll {
				if !flags.yes {
					fmt.Fprintf(out, "Delete all values from tables in %s? Be careful, this cannot be reversed!\n[yes/no]? ", cfg.Database.URL)
					answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
					if strings.ToLower(strings.TrimSpace(answer)) != "yes" {
						fmt.Fprintln(out, "Canceling operation")
						return nil
					}
				}
				fmt.Fprintln(out, "Deleting table content")
				if err := store.DropAll(cmd.Context()); err != nil {
					return err
				}
			}
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "Tables created")
			return nil
		},
	}
	fs := c.Flags()
	fs.BoolVar(&flags.dropAll, "drop-all", false, "clear defined tables in database")
	fs.BoolVarP(&flags.yes, "yes", "y", false, "skip the confirmation prompt")
	return c
}
