package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	v1 "github.com/telekom/eventsctl/api/v1"
)

func WriteEventTable(w io.Writer, events []v1.Event) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tDATE\tTITLE\tLOCATION")
	for _, e := range events {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, formatTime(e.Date), e.Title, dash(e.Location))
	}
	_ = tw.Flush()
}

func WriteEventTableWide(w io.Writer, events []v1.Event) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tDATE\tTITLE\tLOCATION\tDESCRIPTION")
	for _, e := range events {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, formatTime(e.Date), e.Title, dash(e.Location), truncate(e.Description, 60))
	}
	_ = tw.Flush()
}

// AuthStatus is the view of the login state printed by `auth status`.
type AuthStatus struct {
	Context       string    `json:"context" yaml:"context"`
	Issuer        string    `json:"issuer" yaml:"issuer"`
	ClientID      string    `json:"clientId" yaml:"clientId"`
	Authenticated bool      `json:"authenticated" yaml:"authenticated"`
	PendingLogin  bool      `json:"pendingLogin" yaml:"pendingLogin"`
	Subject       string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Username      string    `json:"username,omitempty" yaml:"username,omitempty"`
	Scopes        []string  `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitzero" yaml:"expiresAt,omitempty"`
}

func WriteAuthStatusTable(w io.Writer, status AuthStatus) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	rows := [][2]string{
		{"CONTEXT", dash(status.Context)},
		{"ISSUER", dash(status.Issuer)},
		{"CLIENT", dash(status.ClientID)},
		{"AUTHENTICATED", fmt.Sprintf("%t", status.Authenticated)},
		{"PENDING_LOGIN", fmt.Sprintf("%t", status.PendingLogin)},
	}
	if status.Authenticated {
		rows = append(rows,
			[2]string{"USER", dash(status.Username)},
			[2]string{"SUBJECT", dash(status.Subject)},
			[2]string{"SCOPES", dash(strings.Join(status.Scopes, " "))},
			[2]string{"EXPIRES", formatTime(status.ExpiresAt)},
		)
	}
	for _, row := range rows {
		_, _ = fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
	}
	_ = tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, limit int) string {
	if s == "" {
		return "-"
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
