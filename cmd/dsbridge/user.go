package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dsbridge/dsbridge/pkg/synology"
)

var outputFormat string

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Look up DSM users",
	}
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, json)")

	cmd.AddCommand(userIDCmd())
	cmd.AddCommand(userGroupsCmd())
	cmd.AddCommand(userGIDsCmd())
	cmd.AddCommand(userShowCmd())
	return cmd
}

func userIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id USERNAME",
		Short: "Print the uid of USERNAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, ok, err := current.bridge.UserID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no such user: %s", args[0])
			}
			return printValue(cmd.OutOrStdout(), outputFormat, uid, strconv.Itoa(uid))
		},
	}
}

func userGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups USERNAME",
		Short: "Print the group names of USERNAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := current.bridge.UserGroupNames(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), outputFormat, groups, strings.Join(groups, "\n"))
		},
	}
}

func userGIDsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gids USERNAME",
		Short: "Print the group ids of USERNAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gids, err := current.bridge.UserGroupIDs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			lines := make([]string, len(gids))
			for i, gid := range gids {
				lines[i] = strconv.Itoa(gid)
			}
			return printValue(cmd.OutOrStdout(), outputFormat, gids, strings.Join(lines, "\n"))
		},
	}
}

func userShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show USERNAME...",
		Short: "Show uid, groups and administrator status of users",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var users []*synology.User
			for _, name := range args {
				u, err := current.bridge.Lookup(cmd.Context(), name)
				if err != nil {
					return err
				}
				if u == nil {
					return fmt.Errorf("no such user: %s", name)
				}
				users = append(users, u)
			}

			if outputFormat == "json" {
				return printValue(cmd.OutOrStdout(), outputFormat, users, "")
			}
			printUsers(cmd.OutOrStdout(), users)
			return nil
		},
	}
}

func printUsers(w io.Writer, users []*synology.User) {
	table := tablewriter.NewWriter(w)
	table.Append([]string{"Username", "UID", "Groups", "GIDs", "Admin"})
	for _, u := range users {
		gids := make([]string, len(u.GroupIDs))
		for i, gid := range u.GroupIDs {
			gids[i] = strconv.Itoa(gid)
		}
		admin := "no"
		if u.IsAdministrator() {
			admin = "yes"
		}
		table.Append([]string{
			u.Name,
			strconv.Itoa(u.UID),
			strings.Join(u.GroupNames, ","),
			strings.Join(gids, ","),
			admin,
		})
	}
	table.Render()
}

func printValue(w io.Writer, format string, v any, text string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text", "":
		if text == "" {
			return nil
		}
		_, err := fmt.Fprintln(w, text)
		return err
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
