package db

import (
	"context"
	"math"
	"sort"
	"time"
)

// tokenDivisor converts content characters to an approximate
// language-model token count.
const tokenDivisor = 4

// estimateTokens derives a token estimate from a character
// count. Zero characters estimate to zero, never negative.
func estimateTokens(chars int64) int64 {
	return int64(math.Round(float64(chars) / tokenDivisor))
}

// epochCutoff returns the epoch-seconds bound for a trailing
// window of whole days ending now.
func (s *Store) epochCutoff(days int) int64 {
	return s.nowFunc().Unix() - int64(days)*24*60*60
}

// nowFunc lets tests pin the clock; production uses time.Now.
func (s *Store) nowFunc() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Overview is the landing-page stat block.
type Overview struct {
	TotalUsers      int64 `json:"totalUsers"`
	TotalChats      int64 `json:"totalChats"`
	ActiveUsers     int64 `json:"activeUsers"`
	TotalModels     int64 `json:"totalModels"`
	EstimatedTokens int64 `json:"estimatedTokens"`
	ToolUsage       int64 `json:"toolUsage"`
}

// GetOverview computes the headline aggregates: user/chat/model
// counts, distinct users active in the trailing 30 days, token
// estimate over all message content, and the count of completed
// built-in tool invocations.
func (s *Store) GetOverview(ctx context.Context) (Overview, error) {
	var o Overview

	chars, err := s.queryOneIntent(ctx, IntentOverviewChars)
	if err != nil {
		return o, err
	}
	o.EstimatedTokens = estimateTokens(chars.Int("total_chars"))

	tools, err := s.queryOneIntent(ctx, IntentOverviewToolEvents)
	if err != nil {
		return o, err
	}
	o.ToolUsage = tools.Int("count")

	users, err := s.queryOneIntent(ctx, IntentTotalUsers)
	if err != nil {
		return o, err
	}
	o.TotalUsers = users.Int("count")

	chats, err := s.queryOneIntent(ctx, IntentTotalChats)
	if err != nil {
		return o, err
	}
	o.TotalChats = chats.Int("count")

	active, err := s.queryOneIntent(
		ctx, IntentActiveUsers, s.epochCutoff(30),
	)
	if err != nil {
		return o, err
	}
	o.ActiveUsers = active.Int("count")

	models, err := s.queryOneIntent(ctx, IntentActiveModels)
	if err != nil {
		return o, err
	}
	o.TotalModels = models.Int("count")

	return o, nil
}

// queryOneIntent builds and runs a single-row intent.
func (s *Store) queryOneIntent(
	ctx context.Context, intent Intent, args ...any,
) (Row, error) {
	q, bound := Build(intent, s.dialect, args...)
	return s.QueryOne(ctx, q, bound...)
}

// queryIntent builds and runs a multi-row intent.
func (s *Store) queryIntent(
	ctx context.Context, intent Intent, args ...any,
) ([]Row, error) {
	q, bound := Build(intent, s.dialect, args...)
	return s.Query(ctx, q, bound...)
}

// ModelUsage is one model's share of message traffic.
type ModelUsage struct {
	Model           string `json:"model"`
	UsageCount      int64  `json:"usage_count"`
	TotalChars      int64  `json:"total_chars"`
	EstimatedTokens int64  `json:"estimated_tokens"`
}

// GetModelUsage returns per-model message counts and token
// estimates, most used first, top 20.
func (s *Store) GetModelUsage(
	ctx context.Context,
) ([]ModelUsage, error) {
	rows, err := s.queryIntent(ctx, IntentModelUsage)
	if err != nil {
		return nil, err
	}
	out := make([]ModelUsage, 0, len(rows))
	for _, r := range rows {
		chars := r.Int("total_chars")
		out = append(out, ModelUsage{
			Model:           r.String("model"),
			UsageCount:      r.Int("usage_count"),
			TotalChars:      chars,
			EstimatedTokens: estimateTokens(chars),
		})
	}
	return out, nil
}

// ActivityEntry is one calendar day of chat activity.
type ActivityEntry struct {
	Date        string `json:"date"`
	ChatCount   int64  `json:"chat_count"`
	UniqueUsers int64  `json:"unique_users"`
}

// GetActivity returns per-day chat and distinct-user counts for
// a trailing window of the given number of days, newest first.
// A zero-day window yields an empty series: the cutoff is now
// and the filter is strictly greater-than.
func (s *Store) GetActivity(
	ctx context.Context, days int,
) ([]ActivityEntry, error) {
	rows, err := s.queryIntent(
		ctx, IntentActivityByDay, s.epochCutoff(days),
	)
	if err != nil {
		return nil, err
	}
	out := make([]ActivityEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, ActivityEntry{
			Date:        r.String("date"),
			ChatCount:   r.Int("chat_count"),
			UniqueUsers: r.Int("unique_users"),
		})
	}
	return out, nil
}

// UserStats is one leaderboard row. LastActivity is null for
// users with no chats; the numeric aggregates are always
// present, zero when the user has no activity.
type UserStats struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Role            string `json:"role"`
	ChatCount       int64  `json:"chat_count"`
	LastActivity    *int64 `json:"last_activity"`
	EstimatedTokens int64  `json:"estimated_tokens"`
}

// GetUserLeaderboard returns the top 50 users by chat count.
// Zero-chat users are included with zeroed aggregates (LEFT JOIN
// semantics).
func (s *Store) GetUserLeaderboard(
	ctx context.Context,
) ([]UserStats, error) {
	rows, err := s.queryIntent(ctx, IntentUserLeaderboard)
	if err != nil {
		return nil, err
	}
	out := make([]UserStats, 0, len(rows))
	for _, r := range rows {
		out = append(out, UserStats{
			ID:              r.String("id"),
			Name:            r.String("name"),
			Role:            r.String("role"),
			ChatCount:       r.Int("chat_count"),
			LastActivity:    r.NullInt("last_activity"),
			EstimatedTokens: r.Int("estimated_tokens"),
		})
	}
	return out, nil
}

// Tool origin kinds. Built-in invocations come from structured
// status events; custom ones are inferred from message content
// by the classifier table.
const (
	ToolTypeBuiltin = "builtin"
	ToolTypeCustom  = "custom"
)

// ToolUsage is one tool's aggregate usage, tagged with its
// origin kind.
type ToolUsage struct {
	ToolName    string `json:"tool_name"`
	UsageCount  int64  `json:"usage_count"`
	UniqueUsers int64  `json:"unique_users"`
	UniqueChats int64  `json:"unique_chats"`
	ToolType    string `json:"tool_type"`
}

// GetToolUsage merges the independently computed built-in and
// inferred tool aggregates, most used first, top 20. The two
// sets are never deduplicated against each other: an action name
// that collides with an inferred label appears once per origin
// kind.
func (s *Store) GetToolUsage(
	ctx context.Context,
) ([]ToolUsage, error) {
	builtin, err := s.queryIntent(ctx, IntentBuiltinTools)
	if err != nil {
		return nil, err
	}
	inferred, err := s.queryIntent(ctx, IntentInferredTools)
	if err != nil {
		return nil, err
	}

	all := make([]ToolUsage, 0, len(builtin)+len(inferred))
	for _, r := range append(builtin, inferred...) {
		all = append(all, ToolUsage{
			ToolName:    r.String("tool_name"),
			UsageCount:  r.Int("usage_count"),
			UniqueUsers: r.Int("unique_users"),
			UniqueChats: r.Int("unique_chats"),
			ToolType:    r.String("tool_type"),
		})
	}

	// Name ascending on ties keeps the ordering identical
	// across backends.
	sort.Slice(all, func(i, j int) bool {
		if all[i].UsageCount != all[j].UsageCount {
			return all[i].UsageCount > all[j].UsageCount
		}
		return all[i].ToolName < all[j].ToolName
	})
	if len(all) > 20 {
		all = all[:20]
	}
	return all, nil
}
