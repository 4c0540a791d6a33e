package main

import (
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/edvin/safehouse/internal/model"
)

func (a *app) securityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "security",
		Short: "Inspect security events and posture",
	}
	cmd.AddCommand(a.securityLogsCmd(), a.securityResolveCmd(), a.securityScanCmd(), a.securityScoreCmd())
	return cmd
}

func (a *app) securityLogsCmd() *cobra.Command {
	var severity, eventType, resolved, cursor string
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List security events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			q := url.Values{}
			setIf(q, "severity", severity)
			setIf(q, "event_type", eventType)
			setIf(q, "resolved", resolved)
			setIf(q, "cursor", cursor)
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := c.TenantPath("/security-logs")
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
				Items      []model.SecurityLog `json:"items"`
				NextCursor string              `json:"next_cursor"`
				HasMore    bool                `json:"has_more"`
			}
			if err := resp.Decode(&page); err != nil {
				return err
			}
			printSecurityLogs(a, page.Items)
			if page.HasMore {
				fmt.Fprintf(a.out, "\nMore results: --cursor %s\n", page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&severity, "severity", "", "filter by severity: low, medium, high or critical")
	cmd.Flags().StringVar(&eventType, "event-type", "", "filter by event type")
	cmd.Flags().StringVar(&resolved, "resolved", "", "filter by resolution: true or false")
	cmd.Flags().StringVar(&cursor, "cursor", "", "continue from a previous page")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	return cmd
}

func printSecurityLogs(a *app, logs []model.SecurityLog) {
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEVERITY\tEVENT\tRESOLVED\tCREATED\tDESCRIPTION")
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n", l.ID, l.Severity, l.EventType, l.Resolved, l.CreatedAt.Format(time.RFC3339), l.Description)
	}
	w.Flush()
}

func (a *app) securityResolveCmd() *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "resolve ID",
		Short: "Mark a security event resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			var body any
			if by != "" {
				body = map[string]string{"resolved_by": by}
			}
			resp, err := c.Post(cmd.Context(), c.TenantPath("/security-logs/"+url.PathEscape(args[0])+"/resolve"), body)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(resp.Body)
			}
			var entry model.SecurityLog
			if err := resp.Decode(&entry); err != nil {
				return err
			}
			resolver := ""
			if entry.ResolvedBy != nil {
				resolver = *entry.ResolvedBy
			}
			fmt.Fprintf(a.out, "Security event %s resolved by %s\n", entry.ID, resolver)
			return nil
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "resolver to record (default: the calling key)")
	return cmd
}

func (a *app) securityScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a security scan and show the resulting events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Post(cmd.Context(), c.TenantPath("/security/scan"), nil)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(resp.Body)
			}
			var result model.ScanResult
			if err := resp.Decode(&result); err != nil {
				return err
			}
			printSecurityLogs(a, result.Logs)
			fmt.Fprintf(a.out, "\nSecurity score: %d, active threats: %d, alerts sent: %d\n",
				result.Statistics.SecurityScore, result.Statistics.ActiveThreats, result.AlertsSent)
			return nil
		},
	}
}

func (a *app) securityScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Show the security posture score and its controls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Get(cmd.Context(), c.TenantPath("/security/score"))
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(resp.Body)
			}
			var report model.ScoreReport
			if err := resp.Decode(&report); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Score: %d/100\n\n", report.Score)
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CONTROL\tENABLED")
			for _, ctl := range report.Controls {
				fmt.Fprintf(w, "%s\t%t\n", ctl.Name, ctl.Enabled)
			}
			return w.Flush()
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show backup and security statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Get(cmd.Context(), c.TenantPath("/statistics"))
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(resp.Body)
			}
			var s model.Statistics
			if err := resp.Decode(&s); err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Backups:\t%d (%d ok, %d failed)\n", s.TotalBackups, s.SuccessfulBackups, s.FailedBackups)
			fmt.Fprintf(w, "Storage used:\t%s\n", humanBytes(s.TotalStorageUsed))
			fmt.Fprintf(w, "Active threats:\t%d\n", s.ActiveThreats)
			fmt.Fprintf(w, "Critical events (24h):\t%d\n", s.CriticalEvents)
			fmt.Fprintf(w, "Security score:\t%d\n", s.SecurityScore)
			for _, warning := range s.Warnings {
				fmt.Fprintf(w, "Warning:\t%s\n", warning)
			}
			return w.Flush()
		},
	}
}
