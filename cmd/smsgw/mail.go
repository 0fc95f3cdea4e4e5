package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maxo-smsgw/smsgw/internal/inbox"
	"github.com/maxo-smsgw/smsgw/internal/mailer"
	"github.com/maxo-smsgw/smsgw/internal/outbound"
	"github.com/maxo-smsgw/smsgw/internal/pattern"
	"github.com/maxo-smsgw/smsgw/internal/report"
)

func normalizeCmd() *cobra.Command {
	var subject, explain, rules bool

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize a body read from stdin",
		Long: `Read a message body (HTML or plain text) from stdin and print the text an SMS
would carry. With --subject every input line is treated as a subject and has
its ticket references stripped. With --rules the rule set is listed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rules {
				return listRules(cmd.OutOrStdout())
			}
			return runNormalize(cmd, subject, explain)
		},
	}

	cmd.Flags().BoolVar(&subject, "subject", false, "Strip ticket references from subject lines")
	cmd.Flags().BoolVar(&explain, "explain", false, "Print shape, tier and fired rules to stderr")
	cmd.Flags().BoolVar(&rules, "rules", false, "List pattern rules and gateway reply stages in evaluation order")

	return cmd
}

func runNormalize(cmd *cobra.Command, subject, explain bool) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	norm, err := newProcessor(cfg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if subject {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			fmt.Fprintln(out, norm.StripTicketReference(scanner.Text()))
		}
		return scanner.Err()
	}

	raw, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	res := norm.Process(string(raw))
	if explain {
		errOut := cmd.ErrOrStderr()
		fmt.Fprintf(errOut, "shape: %s\n", res.Shape)
		if res.Tier != "" {
			fmt.Fprintf(errOut, "tier:  %s\n", res.Tier)
		}
		if len(res.Fired) > 0 {
			fmt.Fprintf(errOut, "rules: %s\n", strings.Join(res.Fired, ", "))
		}
	}
	if res.Text != "" {
		fmt.Fprintln(out, res.Text)
	}
	return nil
}

// listRules prints every pattern rule by stage, then the stages the composer
// applies to gateway replies.
func listRules(out io.Writer) error {
	lib := pattern.Default()
	stages := []pattern.Stage{
		pattern.StageMarkup, pattern.StageRelay, pattern.StageText,
		pattern.StageTicket, pattern.StageTicketLead,
	}
	for _, stage := range stages {
		fmt.Fprintf(out, "%s:\n", stage)
		for _, r := range lib.Rules(stage) {
			fmt.Fprintf(out, "  %s\n", r.Name)
		}
	}

	composer := outbound.NewComposer()
	composer.UseGateway(outbound.GatewayStages{})
	pipelines := []struct {
		name  string
		names []string
	}{
		{"send-previous", composer.SendPrevious.Names()},
		{"reply-threads", composer.ReplyThreads.Names()},
		{"subject", composer.Subject.Names()},
		{"body", composer.Body.Names()},
	}
	fmt.Fprintln(out, "gateway replies:")
	for _, p := range pipelines {
		fmt.Fprintf(out, "  %s: %s\n", p.name, strings.Join(p.names, ", "))
	}
	return nil
}

func relayCmd() *cobra.Command {
	var file string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Rewrite and send a message over SMTP",
		Long: `Read an RFC 5322 message, rewrite it for gateway recipients (single plain-text
body, no attachments, no ticket reference in the subject) and submit it to the
configured SMTP server. Messages to anyone else are sent unchanged.

With --dry-run the rewritten message is printed instead of sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd, file, dryRun)
		},
	}

	cmd.Flags().StringVar(&file, "file", "-", "Message file, or - for stdin")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the rewritten message instead of sending it")

	return cmd
}

func runRelay(cmd *cobra.Command, file string, dryRun bool) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if !dryRun {
		if err := cfg.ValidateSMTP(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	var in io.Reader = cmd.InOrStdin()
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("failed to open message: %w", err)
		}
		defer f.Close()
		in = f
	}

	msg, err := outbound.ParseMIME(in)
	if err != nil {
		return err
	}

	norm, err := newProcessor(cfg)
	if err != nil {
		return err
	}
	matcher := newMatcher(cfg)
	interceptor := outbound.NewInterceptor(outbound.Options{
		Matcher:      matcher,
		Normalizer:   norm,
		MaxBodyBytes: cfg.Outbound.MaxBodyBytes,
		Logger:       log,
	})
	composer := outbound.NewComposer()
	composer.UseGateway(outbound.GatewayStages{Matcher: matcher, Normalizer: norm, Logger: log})

	rewritten := outbound.Prepare(msg, interceptor, composer)
	log.Info("relaying message",
		zap.String("from", msg.From()),
		zap.Strings("to", msg.Recipients()),
		zap.Bool("rewritten", rewritten),
		zap.Bool("dry_run", dryRun))
	raw, err := msg.Bytes()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dryRun {
		_, err := out.Write(raw)
		return err
	}

	sender, err := mailer.NewSender(cfg.SMTP)
	if err != nil {
		return fmt.Errorf("failed to initialize SMTP sender: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res := sender.Send(ctx, mailer.Message{
		From:      cfg.SMTP.From,
		To:        msg.Recipients(),
		MessageID: msg.Header.Get("Message-Id"),
		Raw:       raw,
	})
	if !res.Success {
		return fmt.Errorf("failed to relay message: %w", res.Error)
	}

	if rewritten {
		fmt.Fprintf(out, "✅ Relayed as SMS text to %s\n", strings.Join(matcher.Filter(msg.Recipients()), ", "))
	} else {
		fmt.Fprintln(out, "✅ Relayed unchanged")
	}
	return nil
}

func inspectCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Preview normalization of recent gateway mail",
		Long: `Connect to the configured mailbox over IMAP, fetch recent mail sent from gateway
addresses and print how each body would be normalized. Results the pattern set
probably mishandles are flagged for review.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, days)
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Number of days to look back for emails")

	return cmd
}

func runInspect(cmd *cobra.Command, days int) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := cfg.ValidateInbox(); err != nil {
		fmt.Fprintln(out, "📧 Inbox inspection is not configured.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Add the following to your config.yaml:")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "inbox:")
		fmt.Fprintln(out, "  server: imap.example.com")
		fmt.Fprintln(out, "  port: 993")
		fmt.Fprintln(out, "  email: helpdesk@example.com")
		fmt.Fprintln(out, "  password: your-app-password")
		return err
	}

	norm, err := newProcessor(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	monitor := inbox.NewMonitor(cfg.Inbox, newMatcher(cfg), log)
	fmt.Fprintf(out, "📬 Connecting to %s...\n", cfg.Inbox.Server)
	if err := monitor.Connect(ctx); err != nil {
		return err
	}
	defer monitor.Disconnect()

	emails, err := monitor.FetchGatewayEmails(ctx, days)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "📥 %d gateway messages in the last %d days\n\n", len(emails), days)

	engine, err := report.NewEngine(true)
	if err != nil {
		return err
	}
	return engine.Inspect(out, inbox.Inspect(emails, norm))
}
