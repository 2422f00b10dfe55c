package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http/dto"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/auth"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/logger"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/postgres"
)

var errInconsistent = errors.New("ledger is not consistent")

type options struct {
	baseURL string
	token   string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "ledger-cli",
		Short:         "SwiftPayMe ledger CLI",
		Long:          `A command line interface for operating the SwiftPayMe ledger service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("LEDGER_URL", "http://localhost:8080"), "Base URL of the ledger API")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("LEDGER_TOKEN"), "Bearer token for the ledger API")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(
		migrateCmd(),
		tokenCmd(),
		ledgerCmd(opts),
		accountCmd(opts),
	)
	return rootCmd
}

func (o *options) client() *apiClient {
	return newAPIClient(o.baseURL, o.token, o.timeout)
}

func migrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")

	migrator := func() (*postgres.Migrator, error) {
		if databaseURL == "" {
			return nil, errors.New("--database-url or DATABASE_URL is required")
		}
		log := logger.New(logger.Config{Level: "info", Format: "console", Output: os.Stderr})
		return postgres.NewMigrator(databaseURL, log), nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := migrator()
				if err != nil {
					return err
				}
				return m.Up()
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := migrator()
				if err != nil {
					return err
				}
				return m.Down()
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := migrator()
				if err != nil {
					return err
				}
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version: %d dirty: %v\n", version, dirty)
				return nil
			},
		},
	)
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		secret  string
		issuer  string
		role    string
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Service token utilities",
	}

	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed service token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or JWT_SECRET is required")
			}
			actor := &domain.Actor{ID: subject, Role: domain.Role(role)}
			if !actor.Role.IsValid() {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.NewJWTManager(secret, issuer, ttl).Generate(actor)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HMAC signing secret")
	issue.Flags().StringVar(&issuer, "issuer", os.Getenv("JWT_ISSUER"), "Token issuer")
	issue.Flags().StringVar(&role, "role", string(domain.RoleService), "Role: viewer, service, compliance or admin")
	issue.Flags().StringVar(&subject, "subject", "", "Actor identity recorded in audit logs")
	issue.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = issue.MarkFlagRequired("subject")

	cmd.AddCommand(issue)
	return cmd
}

func ledgerCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger reports",
	}

	var (
		currency string
		asOf     string
		asJSON   bool
	)
	trialBalance := &cobra.Command{
		Use:   "trial-balance",
		Short: "Print the trial balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if currency != "" {
				q.Set("currency", currency)
			}
			if asOf != "" {
				q.Set("asOf", asOf)
			}
			var tb dto.TrialBalanceResponse
			if err := opts.client().get(cmd.Context(), "/api/v1/ledger/trial-balance", q, &tb); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), tb)
			}
			return printTrialBalance(cmd.OutOrStdout(), &tb)
		},
	}
	trialBalance.Flags().StringVar(&currency, "currency", "", "Restrict to one currency")
	trialBalance.Flags().StringVar(&asOf, "as-of", "", "RFC3339 cut-off time")
	trialBalance.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	var accountID, reference string
	var limit int
	auditTrail := &cobra.Command{
		Use:   "audit-trail",
		Short: "Print balance history for an account or reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if accountID != "" {
				q.Set("accountId", accountID)
			}
			if reference != "" {
				q.Set("reference", reference)
			}
			q.Set("limit", fmt.Sprint(limit))
			var records []dto.HistoryResponse
			if err := opts.client().get(cmd.Context(), "/api/v1/ledger/audit-trail", q, &records); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}
	auditTrail.Flags().StringVar(&accountID, "account", "", "Account ID")
	auditTrail.Flags().StringVar(&reference, "reference", "", "Posting or operation reference")
	auditTrail.Flags().IntVar(&limit, "limit", 50, "Maximum records")

	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Run reconciliation and fail when the ledger is inconsistent",
		RunE: func(cmd *cobra.Command, args []string) error {
			var report dto.ReconciliationResponse
			if err := opts.client().get(cmd.Context(), "/api/v1/ledger/reconciliation", nil, &report); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "accounts: %d reconciled: %d discrepancies: %d drift: %d\n",
				report.TotalAccounts, report.ReconciledAccounts, len(report.Discrepancies), len(report.Drift))
			for _, d := range report.Discrepancies {
				fmt.Fprintf(out, "  %s %s recorded=%s history=%s\n", d.AccountID, d.Bucket, d.Recorded, d.FromHistory)
			}
			if !report.LedgerConsistent {
				return errInconsistent
			}
			fmt.Fprintln(out, "ledger consistent")
			return nil
		},
	}

	cmd.AddCommand(trialBalance, auditTrail, reconcile)
	return cmd
}

func accountCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Account operations",
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show an account with its balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var acc dto.AccountResponse
			if err := opts.client().get(cmd.Context(), "/api/v1/accounts/"+url.PathEscape(args[0]), nil, &acc); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), acc)
		},
	}

	cmd.AddCommand(
		get,
		bucketMoveCmd(opts, "freeze", "Freeze available funds"),
		bucketMoveCmd(opts, "unfreeze", "Return frozen funds to available"),
		lifecycleCmd(opts, "deactivate", "Deactivate an account"),
		lifecycleCmd(opts, "activate", "Reactivate an account"),
		lifecycleCmd(opts, "close", "Close an account with zero balances"),
	)
	return cmd
}

func bucketMoveCmd(opts *options, action, short string) *cobra.Command {
	var reference, amount, reason string

	cmd := &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.BucketMoveRequest{Reference: reference, Reason: reason}
			if amount != "" {
				if _, err := domain.ParsePositiveAmount(amount); err != nil {
					return fmt.Errorf("invalid --amount: %w", err)
				}
				req.Amount = &amount
			}
			var resp dto.BucketMoveResponse
			path := "/api/v1/accounts/" + url.PathEscape(args[0]) + "/" + action
			if err := opts.client().post(cmd.Context(), path, req, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "Idempotency reference for the operation")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount to move; defaults to the whole source bucket")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit log")
	_ = cmd.MarkFlagRequired("reference")
	return cmd
}

func lifecycleCmd(opts *options, action, short string) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var acc dto.AccountResponse
			path := "/api/v1/accounts/" + url.PathEscape(args[0]) + "/" + action
			if err := opts.client().post(cmd.Context(), path, dto.AccountActionRequest{Reason: reason}, &acc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", acc.ID, acc.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit log")
	return cmd
}

func printTrialBalance(w io.Writer, tb *dto.TrialBalanceResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tCURRENCY\tSIDE\tACCOUNTS\tBALANCE\n")
	for _, l := range tb.Lines {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", l.Type, l.Currency, l.Side, l.AccountCount, truncate(l.Balance, 32))
	}
	fmt.Fprintf(tw, "\t\t\t\t\n")
	for _, t := range tb.Totals {
		fmt.Fprintf(tw, "%s\tdebit=%s\tcredit=%s\tnet=%s\tbalanced=%v\n", t.Currency, t.DebitNormal, t.CreditNormal, t.Net, t.Balanced)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !tb.Balanced {
		return errInconsistent
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
