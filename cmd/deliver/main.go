// Command deliver sends one report message and prints the outcome as JSON.
// It exits non-zero when nothing was delivered.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/app"
	"github.com/nimasrn/report-dispatcher/internal/delivery"
	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/internal/services"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
	flag "github.com/spf13/pflag"
)

type output struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	*model.DeliveryResult
}

func main() {
	var (
		link          = flag.String("link", "", "report link to share")
		authors       = flag.StringSlice("author", nil, "report author names, comma separated")
		receivers     = flag.StringSlice("receiver", nil, "people to mention, comma separated")
		channel       = flag.String("channel", "", "channel name or id, overrides the configured default")
		rawDataLink   = flag.String("raw-data-link", "", "raw data spreadsheet link")
		threadContent = flag.String("thread-content", "", "text used to find the thread to reply in")
		threadTS      = flag.String("thread-ts", "", "explicit thread timestamp")
		date          = flag.String("date", "", "custom date string, YYYY/MM/DD")
		file          = flag.String("file", "", "upload this file instead of posting the link")
		envPath       = flag.String("env", "", "path to a .env file")
		verbose       = flag.BoolP("verbose", "v", false, "enable debug logging")
	)
	flag.Parse()

	if *link == "" && *file == "" {
		exit(output{Error: "--link or --file is required"})
	}
	if len(*authors) == 0 || len(*receivers) == 0 {
		exit(output{Error: "--author and --receiver are required"})
	}

	cfg, err := app.Init(*envPath)
	if err != nil {
		exit(output{Error: err.Error()})
	}
	if *verbose {
		opts := cfg.LoggerOptions()
		opts.Level = "debug"
		if _, err := logger.Setup(opts); err != nil {
			logger.Warn("failed to raise log level", "error", err)
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		exit(output{Error: err.Error()})
	}
	slack, err := app.NewSlackClient(cfg)
	if err != nil {
		exit(output{Error: err.Error()})
	}
	deliverer := app.NewDeliverer(cfg, slack, services.NewClock(loc))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := deliverer.Deliver(ctx, &model.DeliveryRequest{
		Authors:       trimAll(*authors),
		Receivers:     trimAll(*receivers),
		Link:          *link,
		RawDataLink:   *rawDataLink,
		Channel:       *channel,
		ThreadContent: *threadContent,
		ThreadTS:      *threadTS,
		Date:          *date,
		FilePath:      *file,
	})
	if err != nil {
		out := output{Error: err.Error()}
		if errors.Is(err, delivery.ErrThreadNotFound) {
			out.Suggestion = delivery.ThreadSuggestion
		}
		exit(out)
	}
	exit(output{Success: true, DeliveryResult: res})
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func exit(out output) {
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(b))
	if !out.Success {
		os.Exit(1)
	}
	os.Exit(0)
}
