package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"serotonyl.ru/bizbattle/internal/app"
	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/features/admin"
	"serotonyl.ru/bizbattle/internal/features/business"
	"serotonyl.ru/bizbattle/internal/features/economy"
	"serotonyl.ru/bizbattle/internal/features/members"
	"serotonyl.ru/bizbattle/internal/features/stock"
	"serotonyl.ru/bizbattle/internal/income"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// cliUserID — от чьего имени CLI пишет в журнал выдачи.
const cliUserID = 0

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:          "bizctl",
		Short:        "Консоль оператора бизнес-батлов",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "подробные логи")

	root.AddCommand(
		newMigrateCmd(),
		newStockCmd(),
		newLeaderboardCmd(),
		newGrantCmd(),
		newHashPasswordCmd(),
	)
	return root
}

// env — хранилище и константы, открытые для одной команды.
type env struct {
	store  ledger.Store
	tuning config.Tuning
	model  income.Model
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.LoadStorage()
	if err != nil {
		return nil, err
	}
	tuning, err := app.LoadTuning(cfg)
	if err != nil {
		return nil, err
	}
	store, err := app.OpenStore(ctx, cfg, tuning)
	if err != nil {
		return nil, err
	}
	return &env{store: store, tuning: tuning, model: income.FromTuning(tuning)}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		log.WithError(err).Warn("Ошибка закрытия хранилища")
	}
}

func (e *env) stock() *stock.Service {
	return stock.NewService(e.store, common.NewLockedRand(0), e.tuning.Stock, e.model)
}

// withEnv открывает хранилище на время команды.
func withEnv(fn func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()
		return fn(ctx, e, cmd, args)
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции хранилища",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
			if err := e.store.Ping(ctx); err != nil {
				return fmt.Errorf("хранилище недоступно: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "миграции применены")
			return nil
		}),
	}
}

func newStockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Биржа",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Показать биржу без изменения",
			Args:  cobra.NoArgs,
			RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
				var series *ledger.StockSeries
				err := e.store.InTx(ctx, func(tx ledger.Tx) error {
					var err error
					series, err = tx.Stock(ctx)
					return err
				})
				if err != nil {
					return err
				}
				printSeries(cmd.OutOrStdout(), series, e)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "refresh",
			Short: "Применить пропущенные шаги биржи и пересчитать доходы",
			Args:  cobra.NoArgs,
			RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
				series, steps, err := e.stock().Refresh(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "шагов применено: %d\n", steps)
				printSeries(cmd.OutOrStdout(), series, e)
				return nil
			}),
		},
	)
	return cmd
}

func printSeries(w io.Writer, s *ledger.StockSeries, e *env) {
	fmt.Fprintf(w, "биржа: %.1f%% (×%.2f)\n", s.CurrentPct, e.model.StockFactor(s.CurrentPct))
	if s.LastTick.IsZero() {
		fmt.Fprintln(w, "тиков ещё не было")
		return
	}
	next := stock.NextTickIn(s, time.Now(), e.tuning.Stock.StepInterval)
	fmt.Fprintf(w, "последний тик: %s, следующий через %s\n",
		s.LastTick.UTC().Format(time.RFC3339), next.Round(time.Second))
}

func newLeaderboardCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:       "leaderboard [richest|businesses]",
		Short:     "Таблица лидеров",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{business.LeaderboardRichest, business.LeaderboardBusinesses},
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
			kind := business.LeaderboardRichest
			if len(args) == 1 {
				kind = strings.ToLower(args[0])
			}
			if limit <= 0 {
				limit = e.tuning.Leaderboard.Size
			}
			svc := business.NewService(e.store, nil, e.stock(), e.model, e.tuning.Economy)
			rows, err := svc.Leaderboard(ctx, kind, limit)
			if err != nil {
				return err
			}
			names := members.NewService(members.NewRepository(e.store))

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if kind == business.LeaderboardBusinesses {
				fmt.Fprintln(tw, "#\tвладелец\tбизнес\tдоход/день\tценность")
				for i, r := range rows {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.2f\n", i+1, names.DisplayName(ctx, r.UserID), r.Name, r.Income, r.Value)
				}
			} else {
				fmt.Fprintln(tw, "#\tигрок\tбизнесов\tдоход/день\tрейтинг")
				for i, r := range rows {
					fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%.2f\n", i+1, names.DisplayName(ctx, r.UserID), r.Count, r.Income, r.Rating)
				}
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "сколько строк показать")
	return cmd
}

func newGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <userID> <amount>",
		Short: "Начислить пленки игроку",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("некорректный userID %q", args[0])
			}
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("некорректная сумма %q", args[1])
			}
			svc := economy.NewService(economy.NewRepository(e.store), time.UTC)
			balance, err := svc.Grant(ctx, cliUserID, userID, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "начислено %d, баланс %d\n", amount, balance)
			return nil
		}),
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [пароль]",
		Short: "Сгенерировать ADMIN_PASSWORD_HASH (argon2id)",
		Long:  "Без аргумента пароль читается из первой строки stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("пустой пароль")
			}
			salt := make([]byte, 16)
			if _, err := rand.Read(salt); err != nil {
				return fmt.Errorf("ошибка генерации соли: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), admin.HashPassword(password, salt))
			return nil
		},
	}
}
