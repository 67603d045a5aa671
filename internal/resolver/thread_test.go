package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	messages  []model.ChannelMessage
	err       error
	calls     int
	lastLimit int
}

func (f *fakeHistory) History(ctx context.Context, channel string, limit int) ([]model.ChannelMessage, error) {
	f.calls++
	f.lastLimit = limit
	return f.messages, f.err
}

func channelHistory() *fakeHistory {
	return &fakeHistory{messages: []model.ChannelMessage{
		{TS: "300.1", Text: "Lunch order for Friday"},
		{TS: "200.1", Text: "【日次】売上レポート納品スレッド 2024/05/01"},
		{TS: "150.1", Text: "Weekly KPI delivery thread"},
		{TS: "100.1", Text: "weekly kpi delivery thread joined", Subtype: "channel_join"},
		{TS: "050.1", Text: "   "},
	}}
}

func TestThreadResolver_EmptyHint(t *testing.T) {
	h := channelHistory()
	r := NewThreadResolver(h, 0)

	match, err := r.Resolve(context.Background(), "C1", "   ")
	require.NoError(t, err)
	assert.Nil(t, match)
	assert.Equal(t, 0, h.calls)
}

func TestThreadResolver_ExactText(t *testing.T) {
	h := channelHistory()
	r := NewThreadResolver(h, 0)

	match, err := r.Resolve(context.Background(), "C1", "  WEEKLY KPI delivery thread ")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "150.1", match.TS)
	assert.Equal(t, 1.0, match.Score)
	assert.Equal(t, DefaultHistoryLimit, h.lastLimit)
}

func TestThreadResolver_SubstringBoost(t *testing.T) {
	r := NewThreadResolver(channelHistory(), 50)

	match, err := r.Resolve(context.Background(), "C1", "売上レポート")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "200.1", match.TS)
	assert.GreaterOrEqual(t, match.Score, 0.8)
}

func TestThreadResolver_SkipsJoinAndEmpty(t *testing.T) {
	h := &fakeHistory{messages: []model.ChannelMessage{
		{TS: "1", Text: "deploy notes", Subtype: "channel_join"},
		{TS: "2", Text: ""},
	}}
	r := NewThreadResolver(h, 10)

	match, err := r.Resolve(context.Background(), "C1", "deploy notes")
	require.NoError(t, err)
	assert.Nil(t, match)
	assert.Equal(t, 10, h.lastLimit)
}

func TestThreadResolver_NoMatchBelowThreshold(t *testing.T) {
	r := NewThreadResolver(channelHistory(), 0)

	for _, hint := range []string{"totally unrelated", "monthly finance", "x"} {
		match, err := r.Resolve(context.Background(), "C1", hint)
		require.NoError(t, err)
		if match != nil {
			assert.Greater(t, match.Score, 0.7, hint)
		}
	}

	match, err := r.Resolve(context.Background(), "C1", "totally unrelated")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestThreadResolver_HistoryError(t *testing.T) {
	r := NewThreadResolver(&fakeHistory{err: errors.New("not_in_channel")}, 0)

	_, err := r.Resolve(context.Background(), "C1", "anything")
	assert.Error(t, err)
}
