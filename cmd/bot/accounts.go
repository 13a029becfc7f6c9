package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"digit_bot/internal/models"
	storage "digit_bot/internal/modules/storage/service"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage stored exchange accounts",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "import <redirect-url>",
			Short: "Import accounts from an OAuth redirect URL (acct1/token1/cur1...)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withState(func(st *models.PersistedState) error {
					n, err := importAccounts(st, args[0])
					if err != nil {
						return err
					}
					fmt.Printf("imported %d account(s), active: %s\n", n, st.ActiveLoginID)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "use <loginid>",
			Short: "Select the active account",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withState(func(st *models.PersistedState) error {
					if err := useAccount(st, args[0]); err != nil {
						return err
					}
					fmt.Printf("active account: %s\n", st.ActiveLoginID)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List stored accounts",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withState(func(st *models.PersistedState) error {
					for _, a := range st.Accounts {
						mark := " "
						if a.LoginID == st.ActiveLoginID {
							mark = "*"
						}
						kind := "real"
						if a.IsVirtual {
							kind = "demo"
						}
						fmt.Printf("%s %s\t%s\t%s\n", mark, a.LoginID, a.Currency, kind)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

// importAccounts счета из redirect-URL. Первый счёт становится активным,
// если активного ещё нет.
func importAccounts(st *models.PersistedState, raw string) (int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, errors.Wrap(err, "parse redirect url")
	}
	accounts := models.AccountsFromRedirect(u.Query())
	if len(accounts) == 0 {
		return 0, errors.New("no acct/token pairs in redirect url")
	}
	for _, a := range accounts {
		st.UpsertAccount(a)
	}
	if _, ok := st.ActiveAccount(); !ok {
		st.ActiveLoginID = accounts[0].LoginID
	}
	return len(accounts), nil
}

func useAccount(st *models.PersistedState, loginID string) error {
	if _, ok := models.FindAccount(st.Accounts, loginID); !ok {
		return errors.Errorf("unknown account %s, import it first", loginID)
	}
	st.ActiveLoginID = loginID
	return nil
}

// withState load -> fn -> save через то же хранилище, что и у run.
func withState(fn func(st *models.PersistedState) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var store storage.Store
	app := fx.New(append(baseOptions(cfg), fx.Populate(&store))...)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(context.Background()) }()

	st, err := store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load state")
	}
	if err := fn(&st); err != nil {
		return err
	}
	return errors.Wrap(store.Save(ctx, st), "save state")
}
