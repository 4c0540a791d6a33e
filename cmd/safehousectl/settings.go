package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func (a *app) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and replace tenant settings",
	}
	cmd.AddCommand(
		a.settingsDocCmd("backup", "/backup-settings"),
		a.settingsDocCmd("security", "/security-settings"),
	)
	return cmd
}

// settingsDocCmd builds get/set for one settings document. Settings are
// always printed as JSON since they are edited as JSON.
func (a *app) settingsDocCmd(name, path string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Manage %s settings", name),
	}

	get := &cobra.Command{
		Use:   "get",
		Short: fmt.Sprintf("Print the %s settings", name),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Get(cmd.Context(), c.TenantPath(path))
			if err != nil {
				return err
			}
			return a.printJSON(resp.Body)
		},
	}

	var file string
	set := &cobra.Command{
		Use:   "set -f FILE",
		Short: fmt.Sprintf("Replace the %s settings with a JSON document (- for stdin)", name),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Put(cmd.Context(), c.TenantPath(path), doc)
			if err != nil {
				return err
			}
			return a.printJSON(resp.Body)
		},
	}
	set.Flags().StringVarP(&file, "file", "f", "", "settings document")
	_ = set.MarkFlagRequired("file")

	cmd.AddCommand(get, set)
	return cmd
}

func readDocument(file string, stdin io.Reader) (json.RawMessage, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("settings in %s are not valid JSON", file)
	}
	return json.RawMessage(data), nil
}
