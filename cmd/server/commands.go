package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/soaringjerry/dyad/internal/middleware"
	"github.com/soaringjerry/dyad/internal/services"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadRuntime()
			if err != nil {
				return err
			}
			_, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			closeStore()
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.StoreDriver)
			return nil
		},
	}
}

// loadQuestionBank reads a JSON array of questions and validates every entry.
func loadQuestionBank(path string) ([]services.QuestionInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	var bank []services.QuestionInput
	if err := json.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	for i := range bank {
		if err := v.Struct(bank[i]); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
	}
	return bank, nil
}

func newSeedQuestionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-questions FILE",
		Short: "Load a JSON question bank, skipping ids that already exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntime()
			if err != nil {
				return err
			}
			bank, err := loadQuestionBank(args[0])
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			n, err := services.NewQuestionService(store).Seed(cmd.Context(), bank)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d of %d questions\n", n, len(bank))
			return nil
		},
	}
}

func newAdminTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Print a signed admin bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadRuntime()
			if err != nil {
				return err
			}
			auth := middleware.NewAdminAuth(cfg.JWTSecret)
			if auth == nil {
				return errors.New("DYAD_JWT_SECRET is not set")
			}
			if ttl <= 0 {
				ttl = cfg.AdminTokenTTL
			}
			tok, err := auth.SignToken("admin", ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to DYAD_ADMIN_TOKEN_TTL)")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [PASSWORD]",
		Short: "Print the bcrypt hash for DYAD_ADMIN_PASSWORD_HASH",
		Long:  "Hashes PASSWORD, or the first line of stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			hash, err := services.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newBackfillCmd() *cobra.Command {
	var (
		limit  int
		budget time.Duration
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Create missing report runs for completed sessions within a time budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadRuntime()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			res, err := services.NewReportService(store).Backfill(cmd.Context(), limit, budget)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum sessions to process")
	cmd.Flags().DurationVar(&budget, "budget", 30*time.Second, "wall-clock budget for the sweep")
	return cmd
}
