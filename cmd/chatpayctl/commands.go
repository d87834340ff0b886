package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/chatpay/chatpay/internal/auth"
	"github.com/chatpay/chatpay/internal/bootstrap"
	"github.com/chatpay/chatpay/internal/config"
	"github.com/chatpay/chatpay/internal/conversation"
	"github.com/chatpay/chatpay/internal/infra"
	"github.com/chatpay/chatpay/internal/logging"
	"github.com/chatpay/chatpay/internal/phone"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatpayctl",
		Short:         "Operator tooling for ChatPay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newChatCmd(), newTokenCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			logger := logging.New(cfg.LogLevel, "chatpayctl")
			db, err := infra.NewPostgresPool(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			applied, err := infra.RunMigrations(cmd.Context(), db, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", len(applied))
			return nil
		},
	}
}

type chatOptions struct {
	from string
	fund string
}

// newChatCmd talks to an in-memory stack. With no message arguments it reads
// one message per line from stdin; "@+1555..." switches the sender.
func newChatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Simulate a conversation against an in-memory stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.WalletMode = config.WalletModeSimulated
			cfg.PendingStore = config.PendingStoreMemory
			cfg.TwilioAccountSID = ""
			cfg.PriceFeedURL = ""
			logger := logging.New("error", "chatpayctl")
			stack, err := bootstrap.Build(cfg, nil, nil, logger)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), stack, opts, args, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.from, "from", "+15550000001", "sender phone number")
	cmd.Flags().StringVar(&opts.fund, "fund", "", "mint this many tokens to each sender once onboarded")
	return cmd
}

func runChat(ctx context.Context, stack *bootstrap.Stack, opts chatOptions, args []string, in io.Reader, out io.Writer) error {
	from, ok := phone.Normalize(opts.from)
	if !ok {
		return fmt.Errorf("invalid --from %q", opts.from)
	}
	var fund decimal.Decimal
	if opts.fund != "" {
		var err error
		if fund, err = decimal.NewFromString(opts.fund); err != nil || !fund.IsPositive() {
			return fmt.Errorf("invalid --fund %q", opts.fund)
		}
	}
	funded := map[string]bool{}

	say := func(sender, body string) {
		replies := stack.Router.HandleInbound(ctx, conversation.InboundMessage{From: sender, Body: body})
		for _, r := range replies {
			fmt.Fprintf(out, "< %s\n", strings.ReplaceAll(r.Body, "\n", "\n  "))
		}
		if fund.IsPositive() && !funded[sender] {
			if u, err := stack.Users.FindByPhone(ctx, sender); err == nil && u.WalletAddress != "" {
				if err := stack.Simulated.Fund(ctx, u.WalletAddress, stack.Cfg.TokenSymbol, fund, "cli:"+sender); err == nil {
					funded[sender] = true
					fmt.Fprintf(out, "  (funded %s %s)\n", fund.StringFixed(2), stack.Cfg.TokenSymbol)
				}
			}
		}
	}

	if len(args) > 0 {
		say(from, strings.Join(args, " "))
		return nil
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "@") {
			next, ok := phone.Normalize(strings.TrimPrefix(line, "@"))
			if !ok {
				fmt.Fprintf(out, "! invalid sender %q\n", line)
				continue
			}
			from = next
			continue
		}
		fmt.Fprintf(out, "> [%s] %s\n", from, line)
		say(from, line)
	}
	return scanner.Err()
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin API bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AdminJWTSecret == "" {
				return errors.New("ADMIN_JWT_SECRET is required")
			}
			if ttl <= 0 {
				ttl = cfg.AdminTokenTTL
			}
			token, err := auth.Issue([]byte(cfg.AdminJWTSecret), subject, auth.RoleAdmin, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to ADMIN_TOKEN_TTL)")
	return cmd
}
