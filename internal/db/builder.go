package db

import (
	"fmt"
	"strings"
)

// Intent identifies one of the fixed analytical query shapes.
// The builder knows how to express every intent in both dialects;
// anything else is a programming error.
type Intent int

const (
	// IntentOverviewChars sums content length across all
	// non-empty messages.
	IntentOverviewChars Intent = iota
	// IntentOverviewToolEvents counts completed status events
	// carrying an action.
	IntentOverviewToolEvents
	// IntentTotalUsers counts rows in "user".
	IntentTotalUsers
	// IntentTotalChats counts rows in chat.
	IntentTotalChats
	// IntentActiveUsers counts distinct chat owners since an
	// epoch cutoff (one bound arg).
	IntentActiveUsers
	// IntentActiveModels counts active models.
	IntentActiveModels
	// IntentModelUsage groups message counts and content length
	// by model, top 20.
	IntentModelUsage
	// IntentActivityByDay buckets chats per calendar day since
	// an epoch cutoff (one bound arg).
	IntentActivityByDay
	// IntentUserLeaderboard ranks users by chat count with
	// derived token estimates, top 50.
	IntentUserLeaderboard
	// IntentBuiltinTools groups completed status events by
	// action name.
	IntentBuiltinTools
	// IntentInferredTools groups content-classified tool labels
	// per distinct (user, chat, label).
	IntentInferredTools
)

// syntax holds the dialect-specific SQL fragments the intents are
// written against. Keeping every difference here is what stops
// the two dialects drifting apart: intent bodies below are
// written exactly once.
type syntax struct {
	// msgFrom joins chat rows to the unnested elements of the
	// embedded history.messages array, aliased msg.
	msgFrom string
	// statusFrom extends msgFrom with the unnested
	// statusHistory array of each message, aliased status.
	statusFrom string
	// msgText projects a message field as text.
	msgText func(field string) string
	// statusText projects a status-event field as text.
	statusText func(field string) string
	// dayOfEpoch truncates an epoch-seconds column to a
	// calendar date.
	dayOfEpoch func(expr string) string
	// statusDone is the completed-flag predicate on a status
	// event. The jsonb dialect needs the explicit numeric cast;
	// SQLite coerces the embedded value itself.
	statusDone string
}

var sqliteSyntax = syntax{
	msgFrom: `chat c,
       json_each(json_extract(c.chat, '$.history.messages')) AS msg`,
	statusFrom: `chat c,
       json_each(json_extract(c.chat, '$.history.messages')) AS msg,
       json_each(json_extract(msg.value, '$.statusHistory')) AS status`,
	msgText: func(field string) string {
		return "json_extract(msg.value, '$." + field + "')"
	},
	statusText: func(field string) string {
		return "json_extract(status.value, '$." + field + "')"
	},
	dayOfEpoch: func(expr string) string {
		return "date(" + expr + ", 'unixepoch')"
	},
	statusDone: "json_extract(status.value, '$.done') = 1",
}

var postgresSyntax = syntax{
	msgFrom: `chat c,
       jsonb_array_elements(c.chat->'history'->'messages') AS msg`,
	statusFrom: `chat c,
       jsonb_array_elements(c.chat->'history'->'messages') AS msg,
       jsonb_array_elements(msg->'statusHistory') AS status`,
	msgText: func(field string) string {
		return "msg->>'" + field + "'"
	},
	statusText: func(field string) string {
		return "status->>'" + field + "'"
	},
	dayOfEpoch: func(expr string) string {
		return "date(to_timestamp(" + expr + "))"
	},
	statusDone: "(status->>'done')::int = 1",
}

func (d Dialect) syntax() syntax {
	if d == DialectPostgres {
		return postgresSyntax
	}
	return sqliteSyntax
}

// rebind converts canonical ? placeholders to the positional
// $1..$n style PostgreSQL expects. The generated queries never
// carry ? inside string literals, so a straight scan is safe.
func rebind(query string, d Dialect) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Build renders the query text for an intent in the given
// dialect and pairs it with the bound parameter values. The two
// dialects always agree on predicates, grouping, ordering, and
// limits. Build panics on an unknown intent: that is a bug in
// the caller, not a runtime condition.
func Build(intent Intent, d Dialect, args ...any) (string, []any) {
	s := d.syntax()
	content := s.msgText("content")

	var q string
	switch intent {
	case IntentOverviewChars:
		q = `SELECT SUM(LENGTH(` + content + `)) AS total_chars
		FROM ` + s.msgFrom + `
		WHERE ` + content + ` IS NOT NULL
		  AND ` + content + ` != ''`

	case IntentOverviewToolEvents:
		q = `SELECT COUNT(*) AS count
		FROM ` + s.statusFrom + `
		WHERE ` + s.statusText("action") + ` IS NOT NULL
		  AND ` + s.statusDone

	case IntentTotalUsers:
		q = `SELECT COUNT(*) AS count FROM "user"`

	case IntentTotalChats:
		q = `SELECT COUNT(*) AS count FROM chat`

	case IntentActiveUsers:
		q = `SELECT COUNT(DISTINCT user_id) AS count
		FROM chat WHERE created_at > ?`

	case IntentActiveModels:
		q = `SELECT COUNT(*) AS count FROM model WHERE is_active = true`

	case IntentModelUsage:
		q = `SELECT ` + s.msgText("model") + ` AS model,
		  COUNT(*) AS usage_count,
		  SUM(LENGTH(COALESCE(` + content + `, ''))) AS total_chars
		FROM ` + s.msgFrom + `
		WHERE ` + s.msgText("model") + ` IS NOT NULL
		GROUP BY model
		ORDER BY usage_count DESC
		LIMIT 20`

	case IntentActivityByDay:
		q = `SELECT ` + s.dayOfEpoch("created_at") + ` AS date,
		  COUNT(*) AS chat_count,
		  COUNT(DISTINCT user_id) AS unique_users
		FROM chat
		WHERE created_at > ?
		GROUP BY date
		ORDER BY date DESC`

	case IntentUserLeaderboard:
		q = `SELECT u.id, u.name, u.role,
		  COUNT(c.id) AS chat_count,
		  MAX(c.updated_at) AS last_activity,
		  COALESCE(token_stats.estimated_tokens, 0) AS estimated_tokens
		FROM "user" u
		LEFT JOIN chat c ON u.id = c.user_id
		LEFT JOIN (
		  SELECT c.user_id,
		    SUM(LENGTH(COALESCE(` + content + `, ''))) / 4 AS estimated_tokens
		  FROM ` + s.msgFrom + `
		  WHERE ` + content + ` IS NOT NULL
		    AND ` + content + ` != ''
		  GROUP BY c.user_id
		) AS token_stats ON u.id = token_stats.user_id
		GROUP BY u.id, u.name, u.role, token_stats.estimated_tokens
		ORDER BY chat_count DESC
		LIMIT 50`

	case IntentBuiltinTools:
		q = `SELECT ` + s.statusText("action") + ` AS tool_name,
		  COUNT(*) AS usage_count,
		  COUNT(DISTINCT c.user_id) AS unique_users,
		  COUNT(DISTINCT c.id) AS unique_chats,
		  'builtin' AS tool_type
		FROM ` + s.statusFrom + `
		WHERE ` + s.statusText("action") + ` IS NOT NULL
		  AND ` + s.statusDone + `
		GROUP BY tool_name`

	case IntentInferredTools:
		q = `WITH tool_extracts AS (
		  SELECT DISTINCT
		    c.user_id,
		    c.id AS chat_id,
		    ` + toolLabelCase(content) + ` AS tool_name
		  FROM ` + s.msgFrom + `
		  WHERE ` + content + ` LIKE ` + quoteLike(toolCallMarker) + `
		    AND ` + content + ` LIKE ` + quoteLike(toolDoneMarker) + `
		)
		SELECT tool_name,
		  COUNT(*) AS usage_count,
		  COUNT(DISTINCT user_id) AS unique_users,
		  COUNT(DISTINCT chat_id) AS unique_chats,
		  'custom' AS tool_type
		FROM tool_extracts
		WHERE tool_name IS NOT NULL
		GROUP BY tool_name`

	default:
		panic(fmt.Sprintf("db: unknown query intent %d", intent))
	}

	return rebind(q, d), args
}
