// Package dispatch decides which reports fire in a cycle and sends them
// through the delivery pipeline. Reports are evaluated one at a time.
package dispatch

import (
	"context"

	"github.com/nimasrn/report-dispatcher/internal/model"
)

type ReportStore interface {
	ListActiveByMode(ctx context.Context, mode model.DeliveryMode) ([]*model.Report, error)
	MarkSent(ctx context.Context, id string) error
	IncrementDeliveryCount(ctx context.Context, id string) error
}

type LogWriter interface {
	AddLogEntry(ctx context.Context, entry *model.DeliveryLogEntry) error
}

type Sender interface {
	Deliver(ctx context.Context, req *model.DeliveryRequest) (*model.DeliveryResult, error)
}

type StatusSource interface {
	Rows(ctx context.Context) ([]model.StatusRow, error)
}

type AutomaticLedger interface {
	Delivered(ctx context.Context, date, dedupKey string) (bool, error)
	Record(ctx context.Context, rec *model.AutomaticDelivery) (bool, error)
}

type SettingsReader interface {
	AutomaticDeliveryEnabled(ctx context.Context) bool
}

// PassSummary counts what one dispatcher pass did.
type PassSummary struct {
	Evaluated int `json:"evaluated"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	NotReady  int `json:"not_ready"`
	Failed    int `json:"failed"`
}

func (p *PassSummary) add(o PassSummary) {
	p.Evaluated += o.Evaluated
	p.Sent += o.Sent
	p.Skipped += o.Skipped
	p.NotReady += o.NotReady
	p.Failed += o.Failed
}

// requestFor maps a report onto a delivery request. Authors and receivers are
// filled by the caller.
func requestFor(rep *model.Report) *model.DeliveryRequest {
	return &model.DeliveryRequest{
		Link:          rep.Link,
		RawDataLink:   rep.RawDataLink,
		Channel:       rep.Channel,
		ThreadContent: rep.ThreadContent,
		ThreadTS:      rep.ThreadTS,
	}
}

func nonEmpty(names ...string) []string {
	var out []string
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}
