// Package export renders conversations as portable transcripts.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/llm"
	"github.com/papercomputeco/parlor/pkg/upload"
)

// Format is an export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat resolves a format name. An empty name selects Markdown.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "md", string(FormatMarkdown):
		return FormatMarkdown, nil
	case string(FormatJSON):
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", name)
	}
}

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	if f == FormatJSON {
		return ".json"
	}
	return ".md"
}

// MimeType returns the MIME type for the format.
func (f Format) MimeType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/markdown; charset=utf-8"
}

// Render exports conv in the given format.
func Render(f Format, conv chat.Conversation, now time.Time) ([]byte, error) {
	switch f {
	case FormatJSON:
		return JSON(conv, now)
	case FormatMarkdown:
		return Markdown(conv, now), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", f)
	}
}

// FileName returns the file name an export of conv is saved under.
func FileName(f Format, conv chat.Conversation, now time.Time) string {
	return fmt.Sprintf("conversation_%s_%s%s", upload.SanitizeName(conv.Name), now.Format("20060102_150405"), f.Extension())
}

// Markdown renders the conversation as question and answer pairs followed by
// per-answer statistics.
func Markdown(conv chat.Conversation, now time.Time) []byte {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", conv.Name)
	fmt.Fprintf(&sb, "- **Messages**: %d\n", len(conv.Messages))
	if tokens, cost := totals(conv.Messages); tokens > 0 {
		fmt.Fprintf(&sb, "- **Tokens**: %d\n", tokens)
		fmt.Fprintf(&sb, "- **Cost**: $%.6f\n", cost)
	}
	fmt.Fprintf(&sb, "- **Exported**: %s\n\n", now.Format(time.RFC3339))

	for i, pair := range chat.FormatHistory(conv.Messages) {
		fmt.Fprintf(&sb, "## %d. %s\n\n", i+1, firstLine(pair[0]))
		if q := strings.TrimSpace(pair[0]); strings.Contains(q, "\n") {
			sb.WriteString(quote(q))
			sb.WriteString("\n\n")
		}

		answer := strings.TrimSpace(pair[1])
		if answer == "" {
			sb.WriteString("_No answer._\n\n")
			continue
		}
		sb.WriteString(answer)
		sb.WriteString("\n\n")

		if stats := answerStats(conv.Messages, i); stats != "" {
			sb.WriteString(stats)
			sb.WriteString("\n\n")
		}
	}

	return []byte(strings.TrimRight(sb.String(), "\n") + "\n")
}

type jsonExport struct {
	Name       string         `json:"name"`
	ExportedAt time.Time      `json:"exported_at"`
	Messages   []chat.Message `json:"messages"`
	History    [][2]string    `json:"history"`
}

// JSON renders the conversation with full message metadata.
func JSON(conv chat.Conversation, now time.Time) ([]byte, error) {
	msgs := conv.Messages
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return json.MarshalIndent(jsonExport{
		Name:       conv.Name,
		ExportedAt: now.UTC(),
		Messages:   msgs,
		History:    chat.FormatHistory(msgs),
	}, "", "  ")
}

// answerStats describes the answer of the n-th history pair.
func answerStats(msgs []chat.Message, n int) string {
	i := 2*n + 1
	if i >= len(msgs) || msgs[i].Role != llm.RoleAssistant {
		return ""
	}
	return stats(msgs[i])
}

func stats(m chat.Message) string {
	parts := StatParts(m)
	if len(parts) == 0 {
		return ""
	}
	return "<sub>" + strings.Join(parts, " · ") + "</sub>"
}

// StatParts lists the statistics of a finalized answer: model, response
// time, token count and the tools it called. Unknown values are left out.
func StatParts(m chat.Message) []string {
	var parts []string
	if m.Model != "" {
		parts = append(parts, "model "+m.Model)
	}
	if m.ResponseTime != nil {
		parts = append(parts, fmt.Sprintf("%.2fs", *m.ResponseTime))
	}
	if m.CostInfo != nil && m.CostInfo.TotalTokens > 0 {
		parts = append(parts, fmt.Sprintf("%d tokens", m.CostInfo.TotalTokens))
	}
	if len(m.ToolCalls) > 0 {
		names := make([]string, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			names = append(names, tc.ToolName)
		}
		parts = append(parts, "tools "+strings.Join(names, ", "))
	}
	return parts
}

func totals(msgs []chat.Message) (int, float64) {
	var tokens int
	var cost float64
	for _, m := range msgs {
		if m.CostInfo == nil {
			continue
		}
		tokens += m.CostInfo.TotalTokens
		cost += m.CostInfo.TotalCost
	}
	return tokens, cost
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if line, _, ok := strings.Cut(s, "\n"); ok {
		return strings.TrimSpace(line) + " …"
	}
	if s == "" {
		return "(empty)"
	}
	return s
}

func quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}
