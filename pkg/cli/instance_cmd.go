package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"opsgate/internal/domain"
)

func newInstanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Manage database instances",
	}

	cmd.AddCommand(newInstanceAddCmd())
	cmd.AddCommand(newInstanceListCmd())
	return cmd
}

func newInstanceAddCmd() *cobra.Command {
	var (
		name     string
		instType string
		host     string
		port     int
		username string
		password string
		mongoURI string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a database instance",
		Long:  "Register a target database instance. Credentials are encrypted before they are stored.",
		Args:  cobra.NoArgs,
		Example: `  # Register a Postgres instance; the password is prompted for
  opsgate instance add --name orders-db --type POSTGRES --host db.internal --port 5432 --username app

  # Register a MongoDB instance
  opsgate instance add --name events-db --type MONGODB --mongo-uri mongodb://db.internal:27017`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inst := &domain.DbInstance{
				Name:     name,
				Type:     domain.InstanceType(instType),
				Host:     host,
				Port:     port,
				Username: username,
				Password: password,
				MongoURI: mongoURI,
			}

			switch inst.Type {
			case domain.InstancePostgres:
				if host == "" || port == 0 || username == "" {
					return fmt.Errorf("postgres instances require --host, --port, and --username")
				}
				if password == "" {
					pw, err := promptPassword("Password: ")
					if err != nil {
						return err
					}
					inst.Password = pw
				}
			case domain.InstanceMongoDB:
				if mongoURI == "" {
					return fmt.Errorf("mongodb instances require --mongo-uri")
				}
			default:
				return fmt.Errorf("unsupported instance type %q: use POSTGRES or MONGODB", instType)
			}

			a, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			created, err := a.Instances.Create(cmd.Context(), inst)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, map[string]interface{}{
					"id":   created.ID,
					"name": created.Name,
					"type": created.Type,
				})
			}
			fmt.Fprintf(os.Stdout, "Created instance %d (%s, %s)\n", created.ID, created.Name, created.Type)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Instance name")
	cmd.Flags().StringVar(&instType, "type", "", "Instance type (POSTGRES, MONGODB)")
	cmd.Flags().StringVar(&host, "host", "", "Database host")
	cmd.Flags().IntVar(&port, "port", 0, "Database port")
	cmd.Flags().StringVar(&username, "username", "", "Database username")
	cmd.Flags().StringVar(&password, "password", "", "Database password (prompted when omitted)")
	cmd.Flags().StringVar(&mongoURI, "mongo-uri", "", "MongoDB connection URI")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newInstanceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered database instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			instances, err := a.Instances.List(cmd.Context())
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				items := make([]map[string]interface{}, 0, len(instances))
				for _, inst := range instances {
					items = append(items, map[string]interface{}{
						"id":   inst.ID,
						"name": inst.Name,
						"type": inst.Type,
						"host": inst.Host,
						"port": inst.Port,
					})
				}
				return printJSON(os.Stdout, items)
			}

			rows := make([][]string, 0, len(instances))
			for _, inst := range instances {
				endpoint := inst.Host
				if inst.Type == domain.InstanceMongoDB {
					endpoint = "(uri)"
				} else if inst.Port != 0 {
					endpoint = fmt.Sprintf("%s:%d", inst.Host, inst.Port)
				}
				rows = append(rows, []string{
					strconv.FormatInt(inst.ID, 10), inst.Name, string(inst.Type), endpoint,
				})
			}
			return printTable(os.Stdout, []string{"ID", "NAME", "TYPE", "ENDPOINT"}, rows)
		},
	}
}

// promptPassword reads a password from the terminal without echo. Falls back
// to an error when stdin is not a terminal so scripts fail loudly instead of
// hanging.
func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal: pass --password instead")
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
