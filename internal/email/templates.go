package email

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

var severityColors = map[model.Severity]string{
	model.SeverityLow:      "#4a90d9",
	model.SeverityMedium:   "#e0a800",
	model.SeverityHigh:     "#e8590c",
	model.SeverityCritical: "#c92a2a",
}

// SecurityAlertSubject returns the subject line for a security alert email.
func SecurityAlertSubject(ev *model.SecurityEvent, appName string) string {
	return fmt.Sprintf("[%s] %s security event: %s",
		appName, strings.ToUpper(string(ev.Severity)), ev.Type)
}

// SecurityAlertHTML returns the HTML body for a security alert email.
func SecurityAlertHTML(ev *model.SecurityEvent, appName string) string {
	color, ok := severityColors[ev.Severity]
	if !ok {
		color = "#4a4a68"
	}

	var rows strings.Builder
	for _, f := range alertFields(ev) {
		fmt.Fprintf(&rows, `
    <tr><td style="padding:4px 12px 4px 0;font-size:13px;color:#8888a0;">%s</td><td style="padding:4px 0;font-size:13px;color:#1a1a2e;">%s</td></tr>`,
			html.EscapeString(f[0]), html.EscapeString(f[1]))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Security alert</title>
</head>
<body style="margin:0;padding:0;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;background-color:#f4f5f7;">
<table width="100%%" cellpadding="0" cellspacing="0" style="background-color:#f4f5f7;padding:40px 0;">
<tr><td align="center">
<table width="560" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;overflow:hidden;box-shadow:0 2px 8px rgba(0,0,0,0.08);">
  <tr><td style="padding:16px 40px;background-color:%s;">
    <h1 style="margin:0;font-size:20px;color:#ffffff;">%s security event</h1>
  </td></tr>
  <tr><td style="padding:24px 40px 8px;">
    <p style="margin:0 0 16px;font-size:15px;color:#4a4a68;line-height:1.6;">%s</p>
  </td></tr>
  <tr><td style="padding:0 40px 32px;">
    <table cellpadding="0" cellspacing="0">%s
    </table>
  </td></tr>
  <tr><td style="padding:16px 40px;background-color:#f9f9fc;border-top:1px solid #eeeef2;">
    <p style="margin:0;font-size:12px;color:#aaaabc;text-align:center;">
      &copy; %s &mdash; This is an automated message, please do not reply.
    </p>
  </td></tr>
</table>
</td></tr>
</table>
</body>
</html>`, color, html.EscapeString(strings.ToUpper(string(ev.Severity))),
		html.EscapeString(ev.Description), rows.String(), html.EscapeString(appName))
}

// SecurityAlertText returns the plain-text body for a security alert email.
func SecurityAlertText(ev *model.SecurityEvent, appName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s security event\n\n%s\n\n", strings.ToUpper(string(ev.Severity)), ev.Description)
	for _, f := range alertFields(ev) {
		fmt.Fprintf(&b, "%s: %s\n", f[0], f[1])
	}
	fmt.Fprintf(&b, "\n- %s", appName)
	return b.String()
}

func alertFields(ev *model.SecurityEvent) [][2]string {
	fields := [][2]string{
		{"Event ID", ev.ID},
		{"Type", string(ev.Type)},
		{"IP address", ev.IPAddress},
		{"Time", ev.CreatedAt.UTC().Format(time.RFC3339)},
	}
	if ev.Method != nil && ev.Endpoint != nil {
		fields = append(fields, [2]string{"Request", *ev.Method + " " + *ev.Endpoint})
	}
	if ev.StatusCode != nil {
		fields = append(fields, [2]string{"Status", fmt.Sprint(*ev.StatusCode)})
	}

	keys := make([]string, 0, len(ev.Metadata))
	for k := range ev.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, [2]string{k, fmt.Sprint(ev.Metadata[k])})
	}
	return fields
}
