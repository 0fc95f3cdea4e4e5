package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maxo-smsgw/smsgw/internal/config"
)

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long:  "Create a new configuration file with the gateway domain, record store and optional SMTP relay settings.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	configPath := resolveConfigPath()
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", configPath)
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "📱 smsgw Configuration Setup")
	fmt.Fprintln(out, "============================")
	fmt.Fprintln(out)

	cfg := config.Default()

	fmt.Fprintln(out, "📡 Gateway")
	cfg.Gateway.Domain = strings.TrimPrefix(promptDefault(reader, out, "Gateway mail domain", cfg.Gateway.Domain), "@")

	fmt.Fprintln(out)
	fmt.Fprintln(out, "🗄️  Record store")
	cfg.Store.Driver = promptDefault(reader, out, "Driver (sqlite/pgx)", cfg.Store.Driver)
	if cfg.Store.Driver == "pgx" {
		cfg.Store.DSN = promptDefault(reader, out, "Postgres DSN", "postgres://localhost/helpdesk")
		cfg.Store.Migrate = strings.EqualFold(promptDefault(reader, out, "Create smsgw tables (y/n)", "n"), "y")
	} else {
		cfg.Store.DSN = promptDefault(reader, out, "Database file", cfg.Store.DSN)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "📧 SMTP relay (leave host empty to skip)")
	if host := prompt(reader, out, "  SMTP host: "); host != "" {
		cfg.SMTP.Host = host
		if port, err := strconv.Atoi(promptDefault(reader, out, "  SMTP port", strconv.Itoa(cfg.SMTP.Port))); err == nil {
			cfg.SMTP.Port = port
		}
		cfg.SMTP.From = prompt(reader, out, "  From address: ")
		cfg.SMTP.Username = prompt(reader, out, "  Username (optional): ")
		if cfg.SMTP.Username != "" {
			cfg.SMTP.Password = prompt(reader, out, "  Password: ")
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.Save(configPath, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "✅ Configuration saved to: %s\n", configPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Run 'smsgw run --dry-run' to preview a maintenance run")
	fmt.Fprintln(out, "  2. Run 'smsgw run' to merge and prune gateway conversations")
	fmt.Fprintln(out, "  3. Run 'smsgw serve' to expose the normalizer to the helpdesk")

	return nil
}

func prompt(reader *bufio.Reader, out io.Writer, message string) string {
	fmt.Fprint(out, message)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return ""
	}
	return strings.TrimSpace(input)
}

func promptDefault(reader *bufio.Reader, out io.Writer, message, def string) string {
	if v := prompt(reader, out, fmt.Sprintf("%s [%s]: ", message, def)); v != "" {
		return v
	}
	return def
}
