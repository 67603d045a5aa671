// Package delivery sends one composed report message to the messaging
// platform. Both dispatchers, the admin API and the one-shot CLI go
// through Deliverer.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/composer"
	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/internal/resolver"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
)

var (
	ErrNoChannel      = errors.New("no channel configured")
	ErrThreadNotFound = errors.New("no matching thread found")
)

// ThreadSuggestion accompanies ErrThreadNotFound when shown to a human.
const ThreadSuggestion = "Remove the thread content to create a new message, or verify the thread content matches an existing message"

var channelIDPattern = regexp.MustCompile(`^[CGD][A-Z0-9]{6,}$`)

type Messenger interface {
	PostMessage(ctx context.Context, channel, text, threadTS string) (*model.PostResult, error)
	UploadFile(ctx context.Context, channel, path, comment, threadTS string) (*model.UploadResult, error)
	ChannelID(ctx context.Context, name string) (string, error)
}

type RecipientMatcher interface {
	Match(ctx context.Context, name string) *model.RecipientMatch
}

type ThreadFinder interface {
	Resolve(ctx context.Context, channel, hint string) (*resolver.ThreadMatch, error)
}

type Config struct {
	DefaultChannel string
	Team           string
	Location       *time.Location
	Now            func() time.Time
}

type Deliverer struct {
	messenger  Messenger
	recipients RecipientMatcher
	threads    ThreadFinder
	config     Config
}

func NewDeliverer(messenger Messenger, recipients RecipientMatcher, threads ThreadFinder, config Config) *Deliverer {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Team == "" {
		config.Team = composer.DefaultTeam
	}
	return &Deliverer{
		messenger:  messenger,
		recipients: recipients,
		threads:    threads,
		config:     config,
	}
}

// Deliver resolves the channel and thread, renders the message and sends it
// once. A thread hint that matches nothing fails the delivery rather than
// starting a new conversation.
func (d *Deliverer) Deliver(ctx context.Context, req *model.DeliveryRequest) (*model.DeliveryResult, error) {
	channel, err := d.resolveChannel(ctx, req.Channel)
	if err != nil {
		return nil, err
	}

	threadTS, score, err := d.resolveThread(ctx, channel, req)
	if err != nil {
		return nil, err
	}

	authors := d.match(ctx, req.Authors)
	receivers := d.match(ctx, req.Receivers)

	date := req.Date
	if date == "" {
		date = d.config.Now().In(d.config.Location).Format(composer.DateLayout)
	}

	text := composer.Compose(composer.Input{
		ReceiverMentions: mentions(receivers),
		AuthorMentions:   mentions(authors),
		Team:             d.config.Team,
		Date:             date,
		RawDataLink:      req.RawDataLink,
		Link:             req.Link,
		FileAttached:     req.FilePath != "",
	})

	result := &model.DeliveryResult{
		Channel:     channel,
		ThreadTS:    threadTS,
		Text:        text,
		UsedThread:  threadTS != "",
		ThreadScore: score,
		Authors:     authors,
		Receivers:   receivers,
	}

	if req.FilePath != "" {
		up, err := d.messenger.UploadFile(ctx, channel, req.FilePath, text, threadTS)
		if err != nil {
			return nil, fmt.Errorf("failed to upload file: %w", err)
		}
		result.FileID = up.FileID
	} else {
		post, err := d.messenger.PostMessage(ctx, channel, text, threadTS)
		if err != nil {
			return nil, fmt.Errorf("failed to post message: %w", err)
		}
		result.MessageTS = post.TS
		if post.Channel != "" {
			result.Channel = post.Channel
		}
	}

	logger.Info("message delivered", "channel", result.Channel, "ts", result.MessageTS, "thread_ts", threadTS, "file_id", result.FileID)
	return result, nil
}

func (d *Deliverer) resolveChannel(ctx context.Context, channel string) (string, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		if d.config.DefaultChannel == "" {
			return "", ErrNoChannel
		}
		return d.config.DefaultChannel, nil
	}
	if channelIDPattern.MatchString(channel) {
		return channel, nil
	}
	id, err := d.messenger.ChannelID(ctx, channel)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNoChannel, channel, err)
	}
	return id, nil
}

func (d *Deliverer) resolveThread(ctx context.Context, channel string, req *model.DeliveryRequest) (string, float64, error) {
	if ts := strings.TrimSpace(req.ThreadTS); ts != "" {
		return ts, 0, nil
	}
	hint := strings.TrimSpace(req.ThreadContent)
	if hint == "" {
		return "", 0, nil
	}

	match, err := d.threads.Resolve(ctx, channel, hint)
	if err != nil {
		return "", 0, err
	}
	if match == nil {
		logger.Error("thread content was given but no thread matched", "channel", channel, "thread_content", hint)
		return "", 0, fmt.Errorf("%w: %q", ErrThreadNotFound, hint)
	}
	return match.TS, match.Score, nil
}

// match resolves names in order and drops repeats of the same mention.
func (d *Deliverer) match(ctx context.Context, names []string) []*model.RecipientMatch {
	seen := make(map[string]bool, len(names))
	out := make([]*model.RecipientMatch, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		m := d.recipients.Match(ctx, name)
		if seen[m.Mention] {
			continue
		}
		seen[m.Mention] = true
		out = append(out, m)
	}
	return out
}

func mentions(matches []*model.RecipientMatch) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Mention
	}
	return out
}
