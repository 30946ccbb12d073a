package db

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Messages only count toward inferred tool usage when they carry
// a completed tool-call block. Both markers must appear.
const (
	toolCallMarker = `<details type="tool_calls"`
	toolDoneMarker = `done="true"`
)

// ToolRule maps content patterns to one canonical tool label.
// Patterns use SQL LIKE semantics with an implicit leading and
// trailing wildcard; an embedded % matches any run of characters.
// A rule with several patterns matches when any of them does.
type ToolRule struct {
	Label    string
	Patterns []string
}

// toolRules is the ordered classification table. Evaluation is
// strictly top to bottom and the first matching rule wins, so a
// message is never assigned more than one label. The table is the
// single source of truth: the generated CASE expressions for both
// dialects and the in-process matcher all derive from it.
var toolRules = []ToolRule{
	{"google_calendar", []string{
		`name="tool_get_events_post"`,
		`name="tool_list_calendars_post"`,
		`name="tool_create_event_post"`,
		`name="tool_delete_event_post"`,
		`name="tool_modify_event_post"`,
	}},
	{"gmail", []string{
		`name="tool_get_gmail%"`,
		`name="tool_search_gmail%"`,
		`name="tool_send_gmail%"`,
		`name="tool_draft_gmail%"`,
		`name="tool_modify_gmail%"`,
	}},
	{"todoist", []string{
		`name="get_today_tasks"`,
		`name="get_upcoming_tasks"`,
		`name="get_todoist_tasks"`,
		`name="resolve_todoist_task"`,
	}},
	{"accuweather", []string{
		`name="get_current_weather"`,
		`name="get_future_weather%"`,
	}},
	{"google_drive", []string{
		`name="tool_search_drive%"`,
		`name="tool_get_drive%"`,
		`name="tool_create_drive%"`,
		`name="tool_list_drive%"`,
	}},
	{"google_docs", []string{
		`name="tool_search_docs%"`,
		`name="tool_get_doc%"`,
		`name="tool_create_doc%"`,
	}},
	{"slack", []string{
		`name="slack_%"`,
	}},
	{"google_spaces", []string{
		`name="tool_list_spaces%"`,
	}},
	// Vendor names appear bare in content rather than inside a
	// name="..." attribute.
	{"quantconnect", []string{
		`quantbook%"`,
		`quantconnect%"`,
	}},
}

// ToolRules returns a copy of the ordered rule table.
func ToolRules() []ToolRule {
	out := make([]ToolRule, len(toolRules))
	copy(out, toolRules)
	return out
}

// likeMatch reports whether content matches a LIKE pattern that
// is implicitly wrapped in %...%: the pattern's literal segments
// (split on %) must occur in content in order, case-sensitively.
func likeMatch(content, pattern string) bool {
	idx := 0
	for _, seg := range strings.Split(pattern, "%") {
		if seg == "" {
			continue
		}
		p := strings.Index(content[idx:], seg)
		if p < 0 {
			return false
		}
		idx += p + len(seg)
	}
	return true
}

// MatchToolLabel evaluates the rule table against raw content.
// Returns the first matching label, or ok=false when no rule
// matches. It does not check the completed-tool-call markers;
// see ClassifyContent.
func MatchToolLabel(content string) (string, bool) {
	for _, rule := range toolRules {
		for _, pat := range rule.Patterns {
			if likeMatch(content, pat) {
				return rule.Label, true
			}
		}
	}
	return "", false
}

// ClassifyContent returns the tool label for a message body, or
// ok=false when the body has no completed tool-call block or no
// rule matches. This is the in-process equivalent of the SQL the
// builder generates, kept for backend-independent verification.
func ClassifyContent(content string) (string, bool) {
	if !strings.Contains(content, toolCallMarker) ||
		!strings.Contains(content, toolDoneMarker) {
		return "", false
	}
	return MatchToolLabel(content)
}

// ClassifyChatPayload walks a raw chat JSON document
// (history.messages[].content) and tallies inferred tool labels,
// one per classifiable message.
func ClassifyChatPayload(chatJSON string) map[string]int {
	counts := make(map[string]int)
	gjson.Get(chatJSON, "history.messages").ForEach(
		func(_, msg gjson.Result) bool {
			if label, ok := ClassifyContent(
				msg.Get("content").String(),
			); ok {
				counts[label]++
			}
			return true
		})
	return counts
}

// quoteLike wraps a pattern in a SQL string literal with leading
// and trailing wildcards. Patterns contain no single quotes.
func quoteLike(pattern string) string {
	return "'%" + pattern + "%'"
}

// toolLabelCase renders the rule table as a CASE expression over
// contentExpr. Both dialects pass their own content projection;
// the rule order and labels are identical by construction.
func toolLabelCase(contentExpr string) string {
	var b strings.Builder
	b.WriteString("CASE\n")
	for _, rule := range toolRules {
		b.WriteString("          WHEN ")
		for i, pat := range rule.Patterns {
			if i > 0 {
				b.WriteString(" OR ")
			}
			b.WriteString(contentExpr)
			b.WriteString(" LIKE ")
			b.WriteString(quoteLike(pat))
		}
		b.WriteString(" THEN '")
		b.WriteString(rule.Label)
		b.WriteString("'\n")
	}
	b.WriteString("          ELSE NULL\n        END")
	return b.String()
}
