package main

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Member struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	RealName string  `json:"real_name"`
	Deleted  bool    `json:"deleted"`
	IsBot    bool    `json:"is_bot"`
	Profile  Profile `json:"profile"`
}

type Profile struct {
	RealName    string `json:"real_name"`
	DisplayName string `json:"display_name"`
}

type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Message struct {
	TS       string `json:"ts"`
	Text     string `json:"text"`
	Subtype  string `json:"subtype,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
	FileID   string `json:"file_id,omitempty"`
}

type pendingUpload struct {
	Filename string
	Length   int
	Received int
}

// Workspace is an in-memory Slack workspace. Posted messages are kept newest
// first per channel, the order conversations.history returns.
type Workspace struct {
	mu          sync.Mutex
	members     []Member
	channels    []Channel
	messages    map[string][]Message
	uploads     map[string]*pendingUpload
	failureRate float64
	rng         *rand.Rand
	seq         int64
}

func NewWorkspace(failureRate float64) *Workspace {
	w := &Workspace{
		messages:    make(map[string][]Message),
		uploads:     make(map[string]*pendingUpload),
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		seq:         time.Now().Unix() * 1000000,
	}
	w.members = []Member{
		{ID: "U0000TARO", Name: "taro", RealName: "Taro Yamada", Profile: Profile{DisplayName: "taro.y"}},
		{ID: "U000HANAK", Name: "hanako", RealName: "Hanako Suzuki", Profile: Profile{DisplayName: "Hanako"}},
		{ID: "U0000JIRO", Name: "jiro", RealName: "Jiro Tanaka"},
		{ID: "U00000BOT", Name: "reportbot", IsBot: true, Profile: Profile{RealName: "Report Bot"}},
		{ID: "U000GHOST", Name: "former", RealName: "Former Member", Deleted: true},
	}
	w.channels = []Channel{
		{ID: "C0GENERAL", Name: "general"},
		{ID: "C0REPORTS", Name: "reports"},
	}
	return w
}

func (w *Workspace) nextTS() string {
	w.seq++
	return fmt.Sprintf("%d.%06d", w.seq/1000000, w.seq%1000000)
}

// ShouldFail rolls the configured failure rate.
func (w *Workspace) ShouldFail() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failureRate > 0 && w.rng.Float64() < w.failureRate
}

func (w *Workspace) SetFailureRate(rate float64) {
	w.mu.Lock()
	w.failureRate = rate
	w.mu.Unlock()
}

func (w *Workspace) FailureRate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failureRate
}

func (w *Workspace) hasChannel(id string) bool {
	for _, ch := range w.channels {
		if ch.ID == id {
			return true
		}
	}
	return false
}

func (w *Workspace) Post(channel, text, threadTS, fileID string) (Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.hasChannel(channel) {
		return Message{}, false
	}
	msg := Message{TS: w.nextTS(), Text: text, ThreadTS: threadTS, FileID: fileID}
	w.messages[channel] = append([]Message{msg}, w.messages[channel]...)
	return msg, true
}

func (w *Workspace) History(channel string, limit int) ([]Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.hasChannel(channel) {
		return nil, false
	}
	msgs := w.messages[channel]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return append([]Message(nil), msgs...), true
}

// page slices a list by an offset cursor.
func page[T any](items []T, cursor string, limit int) ([]T, string) {
	start, _ := strconv.Atoi(cursor)
	if start < 0 || start > len(items) {
		start = len(items)
	}
	if limit <= 0 {
		limit = len(items)
	}
	end := start + limit
	if end >= len(items) {
		return append([]T(nil), items[start:]...), ""
	}
	return append([]T(nil), items[start:end]...), strconv.Itoa(end)
}

func (w *Workspace) Members(cursor string, limit int) ([]Member, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return page(w.members, cursor, limit)
}

func (w *Workspace) Channels(cursor string, limit int) ([]Channel, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return page(w.channels, cursor, limit)
}

func (w *Workspace) ReserveUpload(filename string, length int) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := "F" + uuid.New().String()[:8]
	w.uploads[id] = &pendingUpload{Filename: filename, Length: length}
	return id
}

func (w *Workspace) ReceiveUpload(id string, size int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	up, ok := w.uploads[id]
	if !ok {
		return false
	}
	up.Received = size
	return true
}

// CompleteUpload posts the comment with the file attached once all bytes
// have arrived.
func (w *Workspace) CompleteUpload(id, channel, comment, threadTS string) (Message, error) {
	w.mu.Lock()
	up, ok := w.uploads[id]
	if ok {
		delete(w.uploads, id)
	}
	w.mu.Unlock()
	if !ok {
		return Message{}, fmt.Errorf("file_not_found")
	}
	if up.Received != up.Length {
		return Message{}, fmt.Errorf("file_upload_size_mismatch")
	}
	msg, ok := w.Post(channel, comment, threadTS, id)
	if !ok {
		return Message{}, fmt.Errorf("channel_not_found")
	}
	return msg, nil
}
