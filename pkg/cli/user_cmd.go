package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"opsgate/internal/domain"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var (
		name string
		role string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new user",
		Args:  cobra.NoArgs,
		Example: `  # Register a regular user
  opsgate user add --name alice

  # Register a pod manager
  opsgate user add --name bob --role MANAGER`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch domain.Role(role) {
			case domain.RoleUser, domain.RoleManager, domain.RoleAdmin:
			default:
				return fmt.Errorf("unsupported role %q: use USER, MANAGER, or ADMIN", role)
			}

			a, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			user, err := a.Users.Create(cmd.Context(), &domain.User{
				Name: name,
				Role: domain.Role(role),
			})
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, map[string]interface{}{
					"id":   user.ID,
					"name": user.Name,
					"role": user.Role,
				})
			}
			fmt.Fprintf(os.Stdout, "Created user %d (%s, %s)\n", user.ID, user.Name, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "User name")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "Role (USER, MANAGER, ADMIN)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
