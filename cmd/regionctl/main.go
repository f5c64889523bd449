package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/ryandielhenn/zephyrgrid/pkg/command"
	"github.com/ryandielhenn/zephyrgrid/pkg/node"
	"github.com/ryandielhenn/zephyrgrid/pkg/report"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type cli struct {
	addr    string
	out     string
	timeout time.Duration
}

func (c *cli) client() *node.Client { return node.NewClient(c.addr, nil) }

func (c *cli) ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.timeout)
}

func (c *cli) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func (c *cli) printReport(r report.Report) error {
	if c.out == "json" {
		return c.printJSON(r)
	}
	return report.Render(os.Stdout, r)
}

func main() {
	c := &cli{
		addr:    envOr("ZEPHYR_ADDR", "localhost:8080"),
		out:     envOr("ZEPHYR_OUT", "text"),
		timeout: time.Minute,
	}

	root := &cobra.Command{
		Use:          "regionctl",
		Short:        "Deploy extensions and alter live regions across the cluster",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.addr, "addr", c.addr, "member to coordinate through (env ZEPHYR_ADDR)")
	root.PersistentFlags().StringVar(&c.out, "out", c.out, "output format: text|json (env ZEPHYR_OUT)")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", c.timeout, "overall request timeout")

	root.AddCommand(
		deployCmd(c),
		alterRegionCmd(c),
		listDeployedCmd(c),
		undeployCmd(c),
		listMembersCmd(c),
		createRegionCmd(c),
		describeRegionCmd(c),
		benchCmd(c),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func deployCmd(c *cli) *cobra.Command {
	var jar, name string
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy an extension artifact to every member",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jar == "" {
				return fmt.Errorf("--jar is required")
			}
			content, err := os.ReadFile(jar)
			if err != nil {
				return err
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(jar), filepath.Ext(jar))
			}
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			res, err := c.client().Deploy(ctx, name, content)
			if err != nil {
				return err
			}
			if c.out == "json" {
				return c.printJSON(res)
			}
			if res.Unchanged {
				fmt.Printf("%s v%d already deployed with identical content\n", res.Name, res.Version)
				return nil
			}
			fmt.Printf("Deployed %s v%d\n\n", res.Name, res.Version)
			return report.Render(os.Stdout, *res.Report)
		},
	}
	cmd.Flags().StringVar(&jar, "jar", "", "path of the artifact manifest")
	cmd.Flags().StringVar(&name, "name", "", "artifact name (default: file name without extension)")
	return cmd
}

func alterRegionCmd(c *cli) *cobra.Command {
	var regionName, group, members string
	cmd := &cobra.Command{
		Use:   "alter-region",
		Short: "Replace cache listeners, loader or writer of a live region",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if group != "" && members != "" {
				return fmt.Errorf("--group and --member are mutually exclusive")
			}
			flat := map[string]string{"region": regionName, "selector": "all"}
			switch {
			case group != "":
				flat["selector"] = "group:" + group
			case members != "":
				flat["selector"] = "members:" + members
			}
			for _, attr := range []string{command.AttrListener, command.AttrLoader, command.AttrWriter} {
				if cmd.Flags().Changed(attr) {
					flat[attr], _ = cmd.Flags().GetString(attr)
				}
			}
			d, err := command.ParseFlat(flat)
			if err != nil {
				return err
			}
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			rep, err := c.client().AlterRegion(ctx, d)
			if err != nil {
				return err
			}
			return c.printReport(rep)
		},
	}
	cmd.Flags().StringVar(&regionName, "name", "", "region name, e.g. /regionA")
	cmd.Flags().StringVar(&group, "group", "", "alter only on members of this group")
	cmd.Flags().StringVar(&members, "member", "", "alter only on these members (comma separated ids)")
	cmd.Flags().String(command.AttrListener, "", `listener references, e.g. com.example.A,com.example.B{"k":"v"}; '' clears`)
	cmd.Flags().String(command.AttrLoader, "", "loader reference; '' clears")
	cmd.Flags().String(command.AttrWriter, "", "writer reference; '' clears")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func listDeployedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list-deployed",
		Short: "List the latest version of every deployed artifact",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			list, err := c.client().ListDeployed(ctx)
			if err != nil {
				return err
			}
			if c.out == "json" {
				return c.printJSON(list)
			}
			if len(list) == 0 {
				fmt.Println("No artifacts deployed.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "Name\tVersion\tSize\tDeployed")
			for _, a := range list {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", a.Name, a.Version, a.Size, a.DeployedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func undeployCmd(c *cli) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "undeploy",
		Short: "Remove an artifact from every member",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			rep, err := c.client().Undeploy(ctx, name)
			if err != nil {
				return err
			}
			return c.printReport(rep)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "artifact name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func listMembersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list-members",
		Short: "List cluster members and their groups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			ms, err := c.client().ListMembers(ctx)
			if err != nil {
				return err
			}
			if c.out == "json" {
				return c.printJSON(ms)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "Member\tAddress\tState\tGroups")
			for _, m := range ms {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Addr, m.State, strings.Join(m.Groups, ","))
			}
			return tw.Flush()
		},
	}
}

func createRegionCmd(c *cli) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create-region",
		Short: "Create a region on the member given by --addr",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			d, err := c.client().CreateRegion(ctx, name)
			if err != nil {
				return err
			}
			return c.printJSON(d)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "region name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func describeRegionCmd(c *cli) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "describe-region",
		Short: "Show the listeners, loader and writer of a region on the member given by --addr",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			d, err := c.client().DescribeRegion(ctx, name)
			if err != nil {
				return err
			}
			return c.printJSON(d)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "region name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
