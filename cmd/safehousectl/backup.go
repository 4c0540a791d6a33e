package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/edvin/safehouse/internal/model"
)

func (a *app) backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "backup",
		Aliases: []string{"backups"},
		Short:   "Create, inspect and restore backups",
	}
	cmd.AddCommand(
		a.backupListCmd(),
		a.backupCreateCmd(),
		a.backupEmergencyCmd(),
		a.backupUploadCmd(),
		a.backupGetCmd(),
		a.backupDeleteCmd(),
		a.backupActionCmd("test", "Verify a completed backup", "/test"),
		a.backupRestoreCmd(),
		a.backupActionCmd("cancel", "Request cancellation of a pending or running backup", "/cancel"),
		a.backupActionCmd("retry", "Retry a failed or cancelled backup", "/retry"),
		a.backupDownloadCmd(),
	)
	return cmd
}

func (a *app) backupListCmd() *cobra.Command {
	var status, jobType, cursor string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backup jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			q := url.Values{}
			setIf(q, "status", status)
			setIf(q, "type", jobType)
			setIf(q, "cursor", cursor)
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := c.TenantPath("/backup-jobs")
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			resp, err := c.Get(cmd.Context(), path)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(resp.Body)
			}

			var page struct {
				Items      []model.BackupJob `json:"items"`
				NextCursor string            `json:"next_cursor"`
				HasMore    bool              `json:"has_more"`
			}
			if err := resp.Decode(&page); err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tSIZE\tCREATED")
			for _, j := range page.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.JobType, j.Status, humanBytes(j.FileSize), j.CreatedAt.Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if page.HasMore {
				fmt.Fprintf(a.out, "\nMore results: --cursor %s\n", page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&jobType, "type", "", "filter by job type")
	cmd.Flags().StringVar(&cursor, "cursor", "", "continue from a previous page")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	return cmd
}

func (a *app) backupCreateCmd() *cobra.Command {
	var jobType string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a database, files or full backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Post(cmd.Context(), c.TenantPath("/backup-jobs"), map[string]string{"type": jobType})
			if err != nil {
				return err
			}
			return a.printJob(resp.Body)
		},
	}
	cmd.Flags().StringVar(&jobType, "type", model.BackupTypeFull, "backup type: database, files or full")
	return cmd
}

func (a *app) backupEmergencyCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "emergency",
		Short: "Take an immediate full backup and save the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Post(cmd.Context(), c.TenantPath("/backup-jobs/emergency"), nil)
			if err != nil {
				return err
			}
			path, err := writeArchive(output, resp.Filename(), resp.Body)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Backup job %s saved to %s (sha256 %s, mirrored %s)\n",
				resp.Header.Get("X-Backup-Job-ID"), path, resp.Header.Get("X-Checksum-SHA256"), resp.Header.Get("X-Mirrored"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path (default: server-provided filename)")
	return cmd
}

func (a *app) backupUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload an archive as a restorable backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read archive: %w", err)
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Upload(cmd.Context(), c.TenantPath("/backup-jobs/upload"), filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			return a.printJob(resp.Body)
		},
	}
}

func (a *app) backupGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a backup job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Get(cmd.Context(), c.TenantPath("/backup-jobs/"+url.PathEscape(args[0])))
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(resp.Body)
			}
			var job model.BackupJob
			if err := resp.Decode(&job); err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "ID:\t%s\n", job.ID)
			fmt.Fprintf(w, "Type:\t%s\n", job.JobType)
			fmt.Fprintf(w, "Status:\t%s\n", job.Status)
			fmt.Fprintf(w, "Size:\t%s\n", humanBytes(job.FileSize))
			fmt.Fprintf(w, "Duration:\t%ds\n", job.BackupDuration)
			if job.Checksum != nil {
				fmt.Fprintf(w, "Checksum:\t%s\n", *job.Checksum)
			}
			if job.ErrorMessage != nil {
				fmt.Fprintf(w, "Error:\t%s\n", *job.ErrorMessage)
			}
			fmt.Fprintf(w, "Created:\t%s\n", job.CreatedAt.Format(time.RFC3339))
			if job.CompletedAt != nil {
				fmt.Fprintf(w, "Completed:\t%s\n", job.CompletedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func (a *app) backupDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a backup job and its archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errNotConfirmed
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Delete(cmd.Context(), c.TenantPath("/backup-jobs/"+url.PathEscape(args[0])), map[string]bool{"confirm": true})
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(resp.Body)
			}
			fmt.Fprintf(a.out, "Deleted backup job %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the deletion")
	return cmd
}

func (a *app) backupRestoreCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore ID",
		Short: "Restore a completed backup over the tenant's current data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errNotConfirmed
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Post(cmd.Context(), c.TenantPath("/backup-jobs/"+url.PathEscape(args[0])+"/restore"), map[string]bool{"confirm": true})
			if err != nil {
				return err
			}
			return a.printJob(resp.Body)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the restore")
	return cmd
}

// backupActionCmd builds the single-argument POST commands.
func (a *app) backupActionCmd(use, short, suffix string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Post(cmd.Context(), c.TenantPath("/backup-jobs/"+url.PathEscape(args[0])+suffix), nil)
			if err != nil {
				return err
			}
			return a.printJob(resp.Body)
		},
	}
}

func (a *app) backupDownloadCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download ID",
		Short: "Download a completed backup archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Get(cmd.Context(), c.TenantPath("/backup-jobs/"+url.PathEscape(args[0])+"/download"))
			if err != nil {
				return err
			}
			path, err := writeArchive(output, resp.Filename(), resp.Body)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Saved %s (%s)\n", path, humanBytes(int64(len(resp.Body))))
			if resp.Header.Get("X-Backup-Manifest") == "true" {
				fmt.Fprintln(a.out, "Archive unavailable; saved the backup manifest instead.")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file path (default: server-provided filename)")
	return cmd
}

// printJob prints a job response as a one-line summary, or as JSON.
func (a *app) printJob(body json.RawMessage) error {
	if a.jsonOutput {
		return a.printJSON(body)
	}
	var job model.BackupJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	fmt.Fprintf(a.out, "Backup job %s (%s) is %s\n", job.ID, job.JobType, job.Status)
	return nil
}

func writeArchive(output, serverName string, data []byte) (string, error) {
	path := output
	if path == "" {
		path = filepath.Base(serverName)
	}
	if path == "" || path == "." || path == "/" {
		path = "backup.bin"
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func setIf(q url.Values, key, val string) {
	if val != "" {
		q.Set(key, val)
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
