package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"opsgate/internal/domain"
)

func newPodCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pod",
		Short: "Manage pods",
	}

	cmd.AddCommand(newPodAddCmd())
	return cmd
}

func newPodAddCmd() *cobra.Command {
	var (
		name      string
		managerID int64
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new pod",
		Args:  cobra.NoArgs,
		Example: `  # Create a pod managed by user 2
  opsgate pod add --name payments --manager-id 2`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			pod, err := a.Pods.Create(cmd.Context(), &domain.Pod{
				Name:      name,
				ManagerID: managerID,
			})
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, map[string]interface{}{
					"id":        pod.ID,
					"name":      pod.Name,
					"managerId": pod.ManagerID,
				})
			}
			fmt.Fprintf(os.Stdout, "Created pod %d (%s, manager %d)\n", pod.ID, pod.Name, pod.ManagerID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Pod name")
	cmd.Flags().Int64Var(&managerID, "manager-id", 0, "User id of the pod manager")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("manager-id")

	return cmd
}
