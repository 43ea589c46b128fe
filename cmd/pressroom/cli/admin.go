package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pressroomhq/pressroom/internal/model"
	"github.com/pressroomhq/pressroom/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin users",
		Long:  "Create and list the administrative users who can sign in to the Pressroom admin API.",
	}

	cmd.AddCommand(newAdminCreateCmd())
	cmd.AddCommand(newAdminListCmd())

	return cmd
}

// ---------- admin create ----------

func newAdminCreateCmd() *cobra.Command {
	var (
		username string
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new admin user",
		Example: `  pressroom admin create --username editor --email editor@example.com --password secret
  pressroom admin create --username editor --email editor@example.com  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminCreate(cmd.OutOrStdout(), username, email, password)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Admin username (required)")
	cmd.Flags().StringVar(&email, "email", "", "Admin email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (prompted if omitted)")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runAdminCreate(out io.Writer, username, email, password string) error {
	if password == "" {
		var err error
		if password, err = promptPassword(out); err != nil {
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.Logging, false)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	authSvc, err := newAuthService(cfg, st, nil, logger, true)
	if err != nil {
		return err
	}

	admin, err := authSvc.CreateAdmin(context.Background(), username, email, password)
	if err != nil {
		var verrs service.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("cannot create admin: %w", verrs)
		}
		var dup *service.DuplicateAccountError
		if errors.As(err, &dup) {
			return fmt.Errorf("an admin with that %s already exists", dup.Field)
		}
		return fmt.Errorf("create admin: %w", err)
	}

	fmt.Fprintf(out, "Created admin user %q <%s>\n", admin.Username, admin.Email)
	fmt.Fprintf(out, "  id: %s\n", admin.ID)
	return nil
}

// promptPassword reads the password twice from the terminal without echo.
func promptPassword(out io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}

	fmt.Fprint(out, "Password: ")
	pwBytes, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(out)

	fmt.Fprint(out, "Confirm password: ")
	confirmBytes, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Fprintln(out)

	if string(pwBytes) != string(confirmBytes) {
		return "", errors.New("passwords do not match")
	}
	return string(pwBytes), nil
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all admin users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminList(cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAdminList(out io.Writer, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	admins, err := st.ListAdmins(context.Background())
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}

	views := make([]model.AdminView, 0, len(admins))
	for i := range admins {
		views = append(views, admins[i].Safe())
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(views) == 0 {
		fmt.Fprintln(out, "No admin users configured. Use 'pressroom admin create' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-24s %-32s %-20s\n", "USERNAME", "EMAIL", "CREATED")
	fmt.Fprintf(out, "%-24s %-32s %-20s\n", "--------", "-----", "-------")
	for _, a := range views {
		fmt.Fprintf(out, "%-24s %-32s %-20s\n", a.Username, a.Email, a.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}
