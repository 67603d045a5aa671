package services

import (
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
)

// Clock reads wall time in the delivery zone. Day buckets and schedule
// checks all go through it.
type Clock struct {
	Location *time.Location
	NowFunc  func() time.Time
}

func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Location: loc, NowFunc: time.Now}
}

// FixedClock always reports at. Tests and replays use it.
func FixedClock(at time.Time, loc *time.Location) Clock {
	return Clock{Location: loc, NowFunc: func() time.Time { return at }}
}

func (c Clock) Now() time.Time {
	now := time.Now
	if c.NowFunc != nil {
		now = c.NowFunc
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc)
}

func (c Clock) Today() string {
	return c.Now().Format(model.DateLayout)
}

// DaysBack lists the last n dates ending today, newest first.
func (c Clock) DaysBack(n int) []string {
	now := c.Now()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, now.AddDate(0, 0, -i).Format(model.DateLayout))
	}
	return out
}
