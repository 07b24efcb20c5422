// Package export renders sessions for humans and for other programs.
package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/torvik-dev/parley/internal/session"
)

// Supported export formats.
const (
	FormatYAML     = "yaml"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Formats lists every format name, for CLI flag validation.
var Formats = []string{FormatYAML, FormatJSON, FormatMarkdown}

// Render serializes the session in the named format. Unknown formats are
// an error, not a fallback.
func Render(sess session.Session, format string) (string, error) {
	switch format {
	case FormatYAML:
		out, err := yaml.Marshal(sess)
		if err != nil {
			return "", fmt.Errorf("yaml export: %w", err)
		}
		return string(out), nil
	case FormatJSON:
		out, err := json.MarshalIndent(sess, "", "  ")
		if err != nil {
			return "", fmt.Errorf("json export: %w", err)
		}
		return string(out), nil
	case FormatMarkdown:
		return renderMarkdown(sess), nil
	default:
		return "", fmt.Errorf("unknown export format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

func renderMarkdown(sess session.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", sess.ID)
	fmt.Fprintf(&b, "Created %s, updated %s, %d messages.\n",
		sess.CreatedAt.Format("2006-01-02 15:04"),
		sess.UpdatedAt.Format("2006-01-02 15:04"),
		len(sess.Messages))

	for _, m := range sess.Messages {
		ts := m.CreatedAt.Format("15:04")
		switch m.Role {
		case session.RoleTool:
			fmt.Fprintf(&b, "\n## %s — tool: %s\n\n%s\n", ts, m.ToolName, m.Content)
		default:
			fmt.Fprintf(&b, "\n## %s — %s\n\n", ts, m.Role)
			if m.Content != "" {
				fmt.Fprintf(&b, "%s\n", m.Content)
			}
			if m.ToolRequest != nil {
				args, _ := json.Marshal(m.ToolRequest.Arguments)
				fmt.Fprintf(&b, "> requested tool `%s` with `%s`\n", m.ToolRequest.Name, args)
			}
		}
	}

	if len(sess.Invocations) > 0 {
		b.WriteString("\n# Tool invocations\n")
		for _, inv := range sess.Invocations {
			fmt.Fprintf(&b, "\n- `%s` (%s) at %s", inv.ToolName, inv.Status, inv.RequestedAt.Format("15:04:05"))
			if inv.Error != "" {
				fmt.Fprintf(&b, " — %s", inv.Error)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
