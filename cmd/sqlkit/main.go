package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/syssam/sqlkit"
	"github.com/syssam/sqlkit/dialect/sql"
	"github.com/syssam/sqlkit/dialect/sql/schema"
	"github.com/syssam/sqlkit/internal/logger"
	"github.com/syssam/sqlkit/internal/structgen"
)

type options struct {
	configPath string
	connName   string
	verbose    bool
}

type findOptions struct {
	criteriaPath string
	selects      string
	where        string
	order        string
	limit        int
	offset       int
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "sqlkit",
		Short:         "Inspect and query databases configured in a sqlkit file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "sqlkit.yaml", "Path to the connections file")
	root.PersistentFlags().StringVar(&opts.connName, "conn", "", "Connection name (the first one when empty)")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Log statements at debug level")

	root.AddCommand(
		tablesCmd(opts),
		inspectCmd(opts),
		findCmd(opts),
		countCmd(opts),
		execCmd(opts),
		genCmd(opts),
	)
	return root
}

// withConn loads the configuration, opens the selected connection and runs
// fn with it.
func withConn(ctx context.Context, opts *options, fn func(*sql.Conn) error) error {
	f, err := sqlkit.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}
	defer f.Close()
	name := opts.connName
	if name == "" {
		names := f.Names()
		if len(names) == 0 {
			return fmt.Errorf("no connections in %s", opts.configPath)
		}
		name = names[0]
	}
	log := logger.NewLogger(opts.verbose)
	c, err := f.Conn(ctx, name, sql.WithLogger(log))
	if err != nil {
		return err
	}
	return fn(c)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func loadTable(ctx context.Context, c *sql.Conn, name string) (*sql.CommandBuilder, *schema.Table, error) {
	b, err := c.CommandBuilder()
	if err != nil {
		return nil, nil, err
	}
	t, err := b.Schema().Table(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if t == nil {
		return nil, nil, fmt.Errorf("table %q does not exist", name)
	}
	return b, t, nil
}

func tablesCmd(opts *options) *cobra.Command {
	var schemaName string
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of a schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withConn(cmd.Context(), opts, func(c *sql.Conn) error {
				s, err := c.Schema()
				if err != nil {
					return err
				}
				names, err := s.TableNames(cmd.Context(), schemaName)
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&schemaName, "schema", "", "Schema to list (the default schema when empty)")
	return cmd
}

func inspectCmd(opts *options) *cobra.Command {
	var validate bool
	cmd := &cobra.Command{
		Use:   "inspect <table>",
		Short: "Print the metadata of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(cmd.Context(), opts, func(c *sql.Conn) error {
				_, t, err := loadTable(cmd.Context(), c, args[0])
				if err != nil {
					return err
				}
				if validate {
					r := schema.ValidateTable(t)
					fmt.Fprintln(cmd.OutOrStdout(), r.String())
					if r.HasErrors() {
						return fmt.Errorf("table %q has invalid metadata", t.Name)
					}
					return nil
				}
				return writeYAML(cmd.OutOrStdout(), t)
			})
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "Check the key metadata instead of printing it")
	return cmd
}

// criteria builds the criteria of find and count from the criteria file
// and the flags; flags take precedence.
func (o *findOptions) criteria() (*sql.Criteria, error) {
	c := &sql.Criteria{}
	if o.criteriaPath != "" {
		data, err := os.ReadFile(o.criteriaPath)
		if err != nil {
			return nil, fmt.Errorf("cannot load criteria: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("cannot parse criteria: %w", err)
		}
	}
	c.MergeWith(&sql.Criteria{
		Select:    o.selects,
		Condition: o.where,
		Order:     o.order,
		Limit:     o.limit,
		Offset:    o.offset,
	}, true)
	return c, nil
}

func (o *findOptions) register(cmd *cobra.Command, withPaging bool) {
	cmd.Flags().StringVar(&o.criteriaPath, "criteria", "", "YAML file holding a criteria")
	cmd.Flags().StringVar(&o.where, "where", "", "Condition of the WHERE clause")
	if !withPaging {
		return
	}
	cmd.Flags().StringVar(&o.selects, "select", "", "Select list")
	cmd.Flags().StringVar(&o.order, "order", "", "ORDER BY clause")
	cmd.Flags().IntVar(&o.limit, "limit", 0, "Maximum number of rows")
	cmd.Flags().IntVar(&o.offset, "offset", 0, "Number of rows to skip")
}

func findCmd(opts *options) *cobra.Command {
	fo := &findOptions{}
	cmd := &cobra.Command{
		Use:   "find <table>",
		Short: "Print the rows of a table matching a criteria",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			crit, err := fo.criteria()
			if err != nil {
				return err
			}
			return withConn(cmd.Context(), opts, func(c *sql.Conn) error {
				b, t, err := loadTable(cmd.Context(), c, args[0])
				if err != nil {
					return err
				}
				rows, err := b.CreateFindCommand(t, crit).QueryAll(cmd.Context())
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), rows)
			})
		},
	}
	fo.register(cmd, true)
	return cmd
}

func countCmd(opts *options) *cobra.Command {
	fo := &findOptions{}
	cmd := &cobra.Command{
		Use:   "count <table>",
		Short: "Count the rows of a table matching a criteria",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			crit, err := fo.criteria()
			if err != nil {
				return err
			}
			return withConn(cmd.Context(), opts, func(c *sql.Conn) error {
				b, t, err := loadTable(cmd.Context(), c, args[0])
				if err != nil {
					return err
				}
				n, _, err := b.CreateCountCommand(t, crit).QueryScalar(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
	fo.register(cmd, false)
	return cmd
}

func execCmd(opts *options) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Execute a statement and print the number of affected rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make(map[string]any, len(params))
			for _, p := range params {
				name, value, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("invalid parameter %q, want name=value", p)
				}
				values[name] = value
			}
			return withConn(cmd.Context(), opts, func(c *sql.Conn) error {
				n, err := c.CreateCommand(args[0]).BindValues(values).Execute(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d row(s) affected\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Named parameter as name=value (repeatable)")
	return cmd
}

func genCmd(opts *options) *cobra.Command {
	var (
		dir, pkg   string
		schemaName string
	)
	cmd := &cobra.Command{
		Use:   "gen [table...]",
		Short: "Generate Go row types for tables (all tables when none is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(cmd.Context(), opts, func(c *sql.Conn) error {
				s, err := c.Schema()
				if err != nil {
					return err
				}
				var tables []*schema.Table
				if len(args) == 0 {
					if tables, err = s.Tables(cmd.Context(), schemaName); err != nil {
						return err
					}
				}
				for _, name := range args {
					_, t, err := loadTable(cmd.Context(), c, name)
					if err != nil {
						return err
					}
					tables = append(tables, t)
				}
				paths, err := structgen.NewWriter(dir, pkg).WriteAll(cmd.Context(), tables)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "out", "models", "Output directory")
	cmd.Flags().StringVar(&pkg, "package", "models", "Package name of the generated files")
	cmd.Flags().StringVar(&schemaName, "schema", "", "Schema of the tables when none is given")
	return cmd
}
