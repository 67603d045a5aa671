package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) PostMessage(ctx context.Context, channel, text, threadTS string) (*model.PostResult, error) {
	args := m.Called(ctx, channel, text, threadTS)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PostResult), args.Error(1)
}

func (m *MockMessenger) UploadFile(ctx context.Context, channel, path, comment, threadTS string) (*model.UploadResult, error) {
	args := m.Called(ctx, channel, path, comment, threadTS)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UploadResult), args.Error(1)
}

func (m *MockMessenger) ChannelID(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

type MockThreadFinder struct {
	mock.Mock
}

func (m *MockThreadFinder) Resolve(ctx context.Context, channel, hint string) (*resolver.ThreadMatch, error) {
	args := m.Called(ctx, channel, hint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resolver.ThreadMatch), args.Error(1)
}

// directoryMatcher resolves from a fixed name to id table.
type directoryMatcher map[string]string

func (d directoryMatcher) Match(ctx context.Context, name string) *model.RecipientMatch {
	if id, ok := d[name]; ok {
		return &model.RecipientMatch{Input: name, UserID: id, Mention: "<@" + id + ">", Confidence: 1, Kind: "exact"}
	}
	return &model.RecipientMatch{Input: name, Mention: "@" + name, Kind: "none"}
}

var people = directoryMatcher{"Taro": "U1", "taro": "U1", "Hanako": "U2", "Boss": "U9"}

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
}

func newDeliverer(msg *MockMessenger, threads *MockThreadFinder, defaultChannel string) *Deliverer {
	tokyo, _ := time.LoadLocation("Asia/Tokyo")
	return NewDeliverer(msg, people, threads, Config{
		DefaultChannel: defaultChannel,
		Team:           "DDAM",
		Location:       tokyo,
		Now:            fixedNow,
	})
}

func TestDeliverer_PostsToDefaultChannel(t *testing.T) {
	msg := new(MockMessenger)
	threads := new(MockThreadFinder)
	d := newDeliverer(msg, threads, "C0DEFAULT")

	msg.On("PostMessage", mock.Anything, "C0DEFAULT", mock.MatchedBy(func(text string) bool {
		return assert.Contains(t, text, "<@U9>\n") &&
			assert.Contains(t, text, "DDAMチームの<@U1>でございます。") &&
			assert.Contains(t, text, "(2024/05/01)") &&
			assert.Contains(t, text, "https://example.com/report")
	}), "").Return(&model.PostResult{Channel: "C0DEFAULT", TS: "111.222"}, nil)

	res, err := d.Deliver(context.Background(), &model.DeliveryRequest{
		Authors:   []string{"Taro"},
		Receivers: []string{"Boss"},
		Link:      "https://example.com/report",
	})
	require.NoError(t, err)
	assert.Equal(t, "C0DEFAULT", res.Channel)
	assert.Equal(t, "111.222", res.MessageTS)
	assert.False(t, res.UsedThread)
	require.Len(t, res.Authors, 1)
	assert.Equal(t, "U1", res.Authors[0].UserID)
	msg.AssertExpectations(t)
	threads.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliverer_NoChannel(t *testing.T) {
	msg := new(MockMessenger)
	d := newDeliverer(msg, new(MockThreadFinder), "")

	_, err := d.Deliver(context.Background(), &model.DeliveryRequest{Authors: []string{"Taro"}})
	assert.ErrorIs(t, err, ErrNoChannel)
	msg.AssertNotCalled(t, "PostMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliverer_ChannelByName(t *testing.T) {
	msg := new(MockMessenger)
	d := newDeliverer(msg, new(MockThreadFinder), "C0DEFAULT")

	msg.On("ChannelID", mock.Anything, "#reports").Return("C0REPORTS", nil)
	msg.On("PostMessage", mock.Anything, "C0REPORTS", mock.Anything, "").Return(&model.PostResult{Channel: "C0REPORTS", TS: "1.1"}, nil)

	res, err := d.Deliver(context.Background(), &model.DeliveryRequest{Channel: "#reports", Link: "x"})
	require.NoError(t, err)
	assert.Equal(t, "C0REPORTS", res.Channel)
	msg.AssertExpectations(t)
}

func TestDeliverer_UnknownChannelName(t *testing.T) {
	msg := new(MockMessenger)
	d := newDeliverer(msg, new(MockThreadFinder), "C0DEFAULT")

	msg.On("ChannelID", mock.Anything, "missing").Return("", errors.New("channel not found"))

	_, err := d.Deliver(context.Background(), &model.DeliveryRequest{Channel: "missing", Link: "x"})
	assert.ErrorIs(t, err, ErrNoChannel)
	msg.AssertNotCalled(t, "PostMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliverer_ExplicitChannelID(t *testing.T) {
	msg := new(MockMessenger)
	d := newDeliverer(msg, new(MockThreadFinder), "")

	msg.On("PostMessage", mock.Anything, "C0123ABCD", mock.Anything, "").Return(&model.PostResult{TS: "1.1"}, nil)

	res, err := d.Deliver(context.Background(), &model.DeliveryRequest{Channel: "C0123ABCD", Link: "x"})
	require.NoError(t, err)
	assert.Equal(t, "C0123ABCD", res.Channel)
	msg.AssertNotCalled(t, "ChannelID", mock.Anything, mock.Anything)
}

func TestDeliverer_ThreadTSWinsOverHint(t *testing.T) {
	msg := new(MockMessenger)
	threads := new(MockThreadFinder)
	d := newDeliverer(msg, threads, "C0DEFAULT")

	msg.On("PostMessage", mock.Anything, "C0DEFAULT", mock.Anything, "999.000").Return(&model.PostResult{TS: "1000.1"}, nil)

	res, err := d.Deliver(context.Background(), &model.DeliveryRequest{
		Link:          "x",
		ThreadTS:      "999.000",
		ThreadContent: "daily thread",
	})
	require.NoError(t, err)
	assert.True(t, res.UsedThread)
	assert.Equal(t, "999.000", res.ThreadTS)
	threads.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliverer_ThreadHintMatched(t *testing.T) {
	msg := new(MockMessenger)
	threads := new(MockThreadFinder)
	d := newDeliverer(msg, threads, "C0DEFAULT")

	threads.On("Resolve", mock.Anything, "C0DEFAULT", "daily thread").Return(&resolver.ThreadMatch{TS: "555.1", Score: 0.92}, nil)
	msg.On("PostMessage", mock.Anything, "C0DEFAULT", mock.Anything, "555.1").Return(&model.PostResult{TS: "556.1"}, nil)

	res, err := d.Deliver(context.Background(), &model.DeliveryRequest{Link: "x", ThreadContent: "daily thread"})
	require.NoError(t, err)
	assert.Equal(t, "555.1", res.ThreadTS)
	assert.Equal(t, 0.92, res.ThreadScore)
}

func TestDeliverer_ThreadHintMissIsHardFailure(t *testing.T) {
	msg := new(MockMessenger)
	threads := new(MockThreadFinder)
	d := newDeliverer(msg, threads, "C0DEFAULT")

	threads.On("Resolve", mock.Anything, "C0DEFAULT", "nothing like it").Return(nil, nil)

	_, err := d.Deliver(context.Background(), &model.DeliveryRequest{Link: "x", ThreadContent: "nothing like it"})
	assert.ErrorIs(t, err, ErrThreadNotFound)
	msg.AssertNotCalled(t, "PostMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliverer_UploadFile(t *testing.T) {
	msg := new(MockMessenger)
	d := newDeliverer(msg, new(MockThreadFinder), "C0DEFAULT")

	msg.On("UploadFile", mock.Anything, "C0DEFAULT", "/tmp/report.xlsx", mock.MatchedBy(func(text string) bool {
		return assert.Contains(t, text, "ファイルをアップロードしました")
	}), "").Return(&model.UploadResult{FileID: "F1"}, nil)

	res, err := d.Deliver(context.Background(), &model.DeliveryRequest{
		Authors:  []string{"Taro"},
		FilePath: "/tmp/report.xlsx",
		Link:     "https://ignored.example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "F1", res.FileID)
	assert.NotContains(t, res.Text, "https://ignored.example.com")
	msg.AssertExpectations(t)
}

func TestDeliverer_DeduplicatesMentions(t *testing.T) {
	msg := new(MockMessenger)
	d := newDeliverer(msg, new(MockThreadFinder), "C0DEFAULT")

	msg.On("PostMessage", mock.Anything, "C0DEFAULT", mock.Anything, "").Return(&model.PostResult{TS: "1.1"}, nil)

	res, err := d.Deliver(context.Background(), &model.DeliveryRequest{
		Authors: []string{"Taro", "Hanako", "taro", " ", "Unknown"},
		Link:    "x",
	})
	require.NoError(t, err)
	require.Len(t, res.Authors, 3)
	assert.Contains(t, res.Text, "DDAMチームの<@U1> <@U2> @Unknownでございます。")
}

func TestDeliverer_CustomDateAndTransportError(t *testing.T) {
	msg := new(MockMessenger)
	d := newDeliverer(msg, new(MockThreadFinder), "C0DEFAULT")

	msg.On("PostMessage", mock.Anything, "C0DEFAULT", mock.MatchedBy(func(text string) bool {
		return assert.Contains(t, text, "(2023/12/31)")
	}), "").Return(nil, errors.New("connection reset"))

	_, err := d.Deliver(context.Background(), &model.DeliveryRequest{Link: "x", Date: "2023/12/31"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
