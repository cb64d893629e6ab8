package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"opsgate/internal/domain"
	"opsgate/internal/service"
)

func newSubmitCmd() *cobra.Command {
	var (
		requesterID    int64
		podID          int64
		instanceID     int64
		databaseName   string
		submissionType string
		query          string
		scriptFile     string
		comments       string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a query or script for approval",
		Args:  cobra.NoArgs,
		Example: `  # Submit an ad hoc query
  opsgate submit --requester 1 --pod 1 --instance 1 --database orders \
    --type QUERY --query "SELECT count(*) FROM orders"

  # Submit a script from a file
  opsgate submit --requester 1 --pod 1 --instance 2 --database events \
    --type SCRIPT --script-file cleanup.star --comments "archive stale events"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input := service.SubmitInput{
				RequesterID:    requesterID,
				PodID:          podID,
				InstanceID:     instanceID,
				DatabaseName:   databaseName,
				SubmissionType: domain.SubmissionType(submissionType),
				QueryText:      query,
				Comments:       comments,
			}
			if scriptFile != "" {
				content, err := os.ReadFile(scriptFile) //nolint:gosec // path is caller-controlled
				if err != nil {
					return fmt.Errorf("read script file: %w", err)
				}
				input.ScriptContent = string(content)
			}

			a, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			req, err := a.Approval.Submit(cmd.Context(), input)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, requestJSON(req))
			}
			fmt.Fprintf(os.Stdout, "Submitted request %s (%s)\n", req.ID, req.Status)
			return nil
		},
	}

	cmd.Flags().Int64Var(&requesterID, "requester", 0, "Requesting user id")
	cmd.Flags().Int64Var(&podID, "pod", 0, "Pod id")
	cmd.Flags().Int64Var(&instanceID, "instance", 0, "Target instance id")
	cmd.Flags().StringVar(&databaseName, "database", "", "Target database name")
	cmd.Flags().StringVar(&submissionType, "type", string(domain.SubmissionQuery), "Submission type (QUERY, SCRIPT)")
	cmd.Flags().StringVar(&query, "query", "", "Query text (QUERY submissions)")
	cmd.Flags().StringVar(&scriptFile, "script-file", "", "Path to script file (SCRIPT submissions)")
	cmd.Flags().StringVar(&comments, "comments", "", "Free-form comment for the approver")
	_ = cmd.MarkFlagRequired("requester")
	_ = cmd.MarkFlagRequired("pod")
	_ = cmd.MarkFlagRequired("instance")
	_ = cmd.MarkFlagRequired("database")

	return cmd
}

func newApproveCmd() *cobra.Command {
	var approverID int64

	cmd := &cobra.Command{
		Use:   "approve <request-id>",
		Short: "Approve a pending request and execute it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := a.Approval.Approve(cmd.Context(), args[0], approverID)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, result)
			}
			fmt.Fprintf(os.Stdout, "Request %s: %s\n", args[0], result.Status)
			return printJSON(os.Stdout, result.Result)
		},
	}

	cmd.Flags().Int64Var(&approverID, "approver", 0, "Approving user id")
	_ = cmd.MarkFlagRequired("approver")

	return cmd
}

func newRejectCmd() *cobra.Command {
	var (
		actorID int64
		role    string
		reason  string
	)

	cmd := &cobra.Command{
		Use:   "reject <request-id>",
		Short: "Reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			actor := domain.Actor{ID: actorID, Role: domain.Role(role)}
			req, err := a.Approval.Reject(cmd.Context(), args[0], actor, reason)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, requestJSON(req))
			}
			fmt.Fprintf(os.Stdout, "Request %s: %s\n", req.ID, req.Status)
			return nil
		},
	}

	cmd.Flags().Int64Var(&actorID, "actor", 0, "Acting user id")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleManager), "Acting role (MANAGER, ADMIN)")
	cmd.Flags().StringVar(&reason, "reason", "", "Rejection reason shown to the requester")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

func newListCmd() *cobra.Command {
	var (
		requesterID int64
		managerID   int64
		actorID     int64
		all         bool
		status      string
		limit       int
		offset      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List query requests",
		Args:  cobra.NoArgs,
		Example: `  # My own requests
  opsgate list --requester 1

  # Requests pending in my pods
  opsgate list --manager 2 --status PENDING

  # Everything (admin)
  opsgate list --all --actor 3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			var statusFilter *domain.QueryStatus
			if status != "" {
				s := domain.QueryStatus(status)
				statusFilter = &s
			}
			page := domain.Page{Limit: limit, Offset: offset}

			var result *domain.RequestPage
			switch {
			case all:
				actor := domain.Actor{ID: actorID, Role: domain.RoleAdmin}
				result, err = a.Approval.ListAll(cmd.Context(), actor, statusFilter, page)
			case managerID != 0:
				result, err = a.Approval.ListForManager(cmd.Context(), managerID, statusFilter, page)
			case requesterID != 0:
				result, err = a.Approval.ListByRequester(cmd.Context(), requesterID, statusFilter, page)
			default:
				return fmt.Errorf("pass one of --requester, --manager, or --all")
			}
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				items := make([]map[string]interface{}, 0, len(result.Data))
				for i := range result.Data {
					items = append(items, requestJSON(&result.Data[i]))
				}
				return printJSON(os.Stdout, map[string]interface{}{
					"data":       items,
					"pagination": result.Pagination,
				})
			}

			rows := make([][]string, 0, len(result.Data))
			for _, req := range result.Data {
				summary := req.QueryText
				if req.SubmissionType == domain.SubmissionScript {
					summary = req.ScriptContent
				}
				rows = append(rows, []string{
					req.ID,
					string(req.Status),
					string(req.SubmissionType),
					req.DatabaseName,
					strconv.FormatInt(req.RequesterID, 10),
					truncate(summary, 40),
				})
			}
			if err := printTable(os.Stdout, []string{"ID", "STATUS", "TYPE", "DATABASE", "REQUESTER", "SUMMARY"}, rows); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%d of %d\n", len(result.Data), result.Pagination.Total)
			return nil
		},
	}

	cmd.Flags().Int64Var(&requesterID, "requester", 0, "List requests submitted by this user")
	cmd.Flags().Int64Var(&managerID, "manager", 0, "List requests in pods managed by this user")
	cmd.Flags().BoolVar(&all, "all", false, "List all requests (admin)")
	cmd.Flags().Int64Var(&actorID, "actor", 0, "Acting user id (with --all)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, REJECTED, EXECUTED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")

	return cmd
}

func newShowCmd() *cobra.Command {
	var (
		actorID int64
		role    string
	)

	cmd := &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show one query request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			actor := domain.Actor{ID: actorID, Role: domain.Role(role)}
			req, err := a.Approval.Get(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, requestJSON(req))
		},
	}

	cmd.Flags().Int64Var(&actorID, "actor", 0, "Acting user id")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "Acting role (USER, MANAGER, ADMIN)")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

// requestJSON shapes a request for CLI output.
func requestJSON(req *domain.QueryRequest) map[string]interface{} {
	out := map[string]interface{}{
		"id":             req.ID,
		"requesterId":    req.RequesterID,
		"podId":          req.PodID,
		"instanceId":     req.InstanceID,
		"databaseName":   req.DatabaseName,
		"submissionType": req.SubmissionType,
		"status":         req.Status,
		"createdAt":      req.CreatedAt,
		"updatedAt":      req.UpdatedAt,
	}
	if req.QueryText != "" {
		out["queryText"] = req.QueryText
	}
	if req.ScriptContent != "" {
		out["scriptContent"] = req.ScriptContent
	}
	if req.Comments != "" {
		out["comments"] = req.Comments
	}
	if req.ApprovedBy != nil {
		out["approvedBy"] = *req.ApprovedBy
	}
	if req.RejectionReason != nil {
		out["rejectionReason"] = *req.RejectionReason
	}
	if req.ExecutionResult != nil {
		out["executionResult"] = req.ExecutionResult
	}
	return out
}
