package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
)

const (
	DefaultHistoryLimit = 50

	threadThreshold = 0.7
	substringFloor  = 0.8
	subtypeJoin     = "channel_join"
)

type ChannelHistory interface {
	History(ctx context.Context, channel string, limit int) ([]model.ChannelMessage, error)
}

type ThreadMatch struct {
	TS    string
	Text  string
	Score float64
}

// ThreadResolver finds the recent channel message a free-text hint refers to.
type ThreadResolver struct {
	source ChannelHistory
	limit  int
}

func NewThreadResolver(source ChannelHistory, limit int) *ThreadResolver {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &ThreadResolver{source: source, limit: limit}
}

// Resolve returns nil without touching the channel when hint is empty, and
// nil when no message scores above the threshold.
func (t *ThreadResolver) Resolve(ctx context.Context, channel, hint string) (*ThreadMatch, error) {
	needle := normalize(hint)
	if needle == "" {
		return nil, nil
	}

	messages, err := t.source.History(ctx, channel, t.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel history: %w", err)
	}

	var best *ThreadMatch
	for _, msg := range messages {
		text := normalize(msg.Text)
		if text == "" || msg.Subtype == subtypeJoin {
			continue
		}
		score := Ratio(needle, text)
		if strings.Contains(text, needle) || strings.Contains(needle, text) {
			score = max(score, substringFloor)
		}
		if best == nil || score > best.Score {
			best = &ThreadMatch{TS: msg.TS, Text: msg.Text, Score: score}
		}
	}

	if best == nil || best.Score <= threadThreshold {
		score := 0.0
		if best != nil {
			score = best.Score
		}
		logger.Info("no matching thread", "channel", channel, "hint", hint, "best_score", fmt.Sprintf("%.2f", score))
		return nil, nil
	}

	logger.Info("matched thread", "channel", channel, "thread_ts", best.TS, "score", fmt.Sprintf("%.2f", best.Score))
	return best, nil
}
