// Command testfixture generates a deterministic SQLite chat
// database for dashboard development and for loading into a
// PostgreSQL instance when exercising the cross-backend
// equivalence suite.
package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE "user" (
    id   TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    role TEXT NOT NULL
);
CREATE TABLE chat (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    title      TEXT,
    chat       TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE TABLE model (
    id        TEXT PRIMARY KEY,
    name      TEXT,
    is_active INTEGER NOT NULL DEFAULT 1
);
`

type statusEvent struct {
	Action string `json:"action"`
	Done   bool   `json:"done"`
}

type message struct {
	Role          string        `json:"role"`
	Model         string        `json:"model,omitempty"`
	Content       string        `json:"content"`
	StatusHistory []statusEvent `json:"statusHistory,omitempty"`
}

type chatPayload struct {
	History struct {
		Messages []message `json:"messages"`
	} `json:"history"`
}

func payload(msgs ...message) string {
	var p chatPayload
	p.History.Messages = msgs
	b, err := json.Marshal(p)
	if err != nil {
		log.Fatalf("marshaling chat payload: %v", err)
	}
	return string(b)
}

// toolCallBlock renders the completed tool-call marker the way
// the chat frontend embeds it in assistant messages.
func toolCallBlock(toolName, result string) string {
	return fmt.Sprintf(
		`<details type="tool_calls" done="true" name=%q>%s</details>`,
		toolName, result,
	)
}

type userSpec struct {
	id, name, role string
}

type chatSpec struct {
	id, userID string
	daysAgo    int
	msgs       []message
}

var users = []userSpec{
	{"u1", "Ada", "admin"},
	{"u2", "Grace", "user"},
	{"u3", "Linus", "user"},
	{"u4", "Margaret", "pending"}, // no chats
}

func fixtureChats() []chatSpec {
	return []chatSpec{
		{"c1", "u1", 1, []message{
			{Role: "user", Content: "What is on my calendar today?"},
			{Role: "assistant", Model: "gpt-4o",
				Content: toolCallBlock("tool_get_events_post", "3 events") +
					" You have three meetings.",
			},
			{Role: "assistant", Model: "gpt-4o",
				Content: "Anything else?",
				StatusHistory: []statusEvent{
					{Action: "web_search", Done: true},
				}},
		}},
		{"c2", "u1", 2, []message{
			{Role: "user", Content: "Send the weekly report email"},
			{Role: "assistant", Model: "gpt-4o",
				Content: toolCallBlock("tool_send_gmail_message", "sent") +
					" Done, sent to the team."},
		}},
		{"c3", "u2", 3, []message{
			{Role: "user", Content: "Weather tomorrow?"},
			{Role: "assistant", Model: "llama-3.1-70b",
				Content: toolCallBlock("get_current_weather", "22C sunny") +
					" Clear skies, 22 degrees."},
		}},
		{"c4", "u2", 40, []message{
			{Role: "user", Content: "Summarize this document"},
			{Role: "assistant", Model: "llama-3.1-70b", Content: ""},
			{Role: "assistant", Model: "llama-3.1-70b",
				Content: "Here is the summary.",
				StatusHistory: []statusEvent{
					{Action: "retrieval", Done: true},
					{Action: "retrieval", Done: false},
				}},
		}},
		{"c5", "u3", 5, []message{
			{Role: "user", Content: "Run a quantbook backtest"},
			{Role: "assistant", Model: "gpt-4o",
				Content: toolCallBlock("quantbook_backtest", "alpha 0.3") +
					" Backtest finished."},
		}},
	}
}

var models = []struct {
	id     string
	active bool
}{
	{"gpt-4o", true},
	{"llama-3.1-70b", true},
	{"gpt-3.5-turbo", false},
}

func main() {
	out := flag.String("out", "", "output database path")
	flag.Parse()
	if *out == "" {
		fmt.Fprintln(os.Stderr, "usage: testfixture -out <path>")
		os.Exit(1)
	}

	if err := os.Remove(*out); err != nil &&
		!errors.Is(err, os.ErrNotExist) {
		log.Fatalf("removing existing db: %v", err)
	}

	handle, err := sql.Open("sqlite3", *out)
	if err != nil {
		log.Fatalf("opening db: %v", err)
	}
	defer handle.Close()

	if _, err := handle.Exec(schema); err != nil {
		log.Fatalf("creating schema: %v", err)
	}

	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	for _, u := range users {
		if _, err := handle.Exec(
			`INSERT INTO "user" (id, name, role) VALUES (?, ?, ?)`,
			u.id, u.name, u.role,
		); err != nil {
			log.Fatalf("inserting user %s: %v", u.id, err)
		}
	}
	for _, m := range models {
		active := 0
		if m.active {
			active = 1
		}
		if _, err := handle.Exec(
			`INSERT INTO model (id, name, is_active) VALUES (?, ?, ?)`,
			m.id, m.id, active,
		); err != nil {
			log.Fatalf("inserting model %s: %v", m.id, err)
		}
	}
	for _, c := range fixtureChats() {
		created := base.AddDate(0, 0, -c.daysAgo).Unix()
		if _, err := handle.Exec(
			`INSERT INTO chat
			 (id, user_id, title, chat, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.id, c.userID, "fixture "+c.id,
			payload(c.msgs...), created, created+3600,
		); err != nil {
			log.Fatalf("inserting chat %s: %v", c.id, err)
		}
		fmt.Printf("  chat %s: %d messages\n", c.id, len(c.msgs))
	}

	fmt.Printf("wrote %s: %d users, %d models, %d chats\n",
		*out, len(users), len(models), len(fixtureChats()))
}
