package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/brandmesh/auth"
)

func envToken() string { return os.Getenv("BRANDMESH_TOKEN") }

// TokenCmd returns the token command.
func TokenCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and inspect access tokens",
	}

	cmd.AddCommand(tokenIssueCmd(version))
	cmd.AddCommand(tokenVerifyCmd(version))

	return cmd
}

func tokenIssueCmd(version string) *cobra.Command {
	var brandID, role string

	cmd := &cobra.Command{
		Use:   "issue <subject>",
		Short: "Issue a signed token for a principal",
		Long: `Issue a signed token. Set BRANDMESH_JWT_PRIVATE_KEY and
BRANDMESH_JWT_PUBLIC_KEY so tokens verify across processes; otherwise an
ephemeral key is used and the token is only good for this process.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch role {
			case auth.RoleAgent, auth.RoleOperator, auth.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			return withApp(cmd, version, func(_ context.Context, app *App) error {
				token, exp, err := app.JWT.IssueToken(auth.Principal{Subject: args[0], BrandID: brandID, Role: role})
				if err != nil {
					return err
				}

				if app.Config.JWTPrivateKeyPath == "" {
					warn(cmd.ErrOrStderr(), "signed with an ephemeral key")
				}

				fmt.Fprintln(cmd.OutOrStdout(), token)
				ok(cmd.ErrOrStderr(), "expires %s", exp.Format(time.RFC3339))

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&brandID, "brand", "", "brand the principal may access; empty means all")
	cmd.Flags().StringVar(&role, "role", auth.RoleOperator, "agent, operator or admin")

	return cmd
}

func tokenVerifyCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Validate a token and print its principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, version, func(_ context.Context, app *App) error {
				claims, err := app.JWT.ValidateToken(args[0])
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), claims.Principal())
			})
		},
	}
}
