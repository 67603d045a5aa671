package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
)

type MatchKind string

const (
	MatchExact     MatchKind = "exact"
	MatchSubstring MatchKind = "substring"
	MatchFuzzy     MatchKind = "fuzzy"
	MatchNone      MatchKind = "none"
)

const (
	exactConfidence     = 1.0
	substringConfidence = 0.9
	fuzzyThreshold      = 0.8
)

// UserDirectory lists platform members.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]model.User, error)
}

type Resolution struct {
	User       *model.User
	Confidence float64
	Kind       MatchKind
}

func (r Resolution) Resolved() bool {
	return r.User != nil
}

// RecipientResolver maps free-text names to platform users. The directory is
// fetched on first use and kept until Invalidate is called.
type RecipientResolver struct {
	source UserDirectory

	mu     sync.Mutex
	users  []model.User
	loaded bool
}

func NewRecipientResolver(source UserDirectory) *RecipientResolver {
	return &RecipientResolver{source: source}
}

func (r *RecipientResolver) Invalidate() {
	r.mu.Lock()
	r.users = nil
	r.loaded = false
	r.mu.Unlock()
}

func (r *RecipientResolver) directory(ctx context.Context) []model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return r.users
	}

	all, err := r.source.ListUsers(ctx)
	if err != nil {
		// an empty directory still lets delivery go out with raw names
		logger.Error("failed to load user directory", "error", err)
		all = nil
	}
	active := make([]model.User, 0, len(all))
	for _, u := range all {
		if u.Deleted || u.IsBot {
			continue
		}
		active = append(active, u)
	}
	r.users = active
	r.loaded = true
	return r.users
}

func fields(u *model.User) [3]string {
	return [3]string{normalize(u.RealName), normalize(u.Name), normalize(u.DisplayName)}
}

func (r *RecipientResolver) Resolve(ctx context.Context, name string) Resolution {
	needle := normalize(name)
	if needle == "" {
		return Resolution{Kind: MatchNone}
	}
	users := r.directory(ctx)

	for i := range users {
		for _, f := range fields(&users[i]) {
			if f != "" && f == needle {
				return Resolution{User: &users[i], Confidence: exactConfidence, Kind: MatchExact}
			}
		}
	}

	for i := range users {
		for _, f := range fields(&users[i]) {
			if f != "" && (strings.Contains(f, needle) || strings.Contains(needle, f)) {
				return Resolution{User: &users[i], Confidence: substringConfidence, Kind: MatchSubstring}
			}
		}
	}

	best := -1
	bestScore := 0.0
	for i := range users {
		score := 0.0
		for _, f := range fields(&users[i]) {
			if f == "" {
				continue
			}
			if s := Ratio(needle, f); s > score {
				score = s
			}
		}
		if score > fuzzyThreshold && score >= bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		return Resolution{User: &users[best], Confidence: bestScore, Kind: MatchFuzzy}
	}

	return Resolution{Kind: MatchNone}
}

// Match resolves name and renders it as a mention. Unknown names come back
// as a plain "@name".
func (r *RecipientResolver) Match(ctx context.Context, name string) *model.RecipientMatch {
	name = strings.TrimSpace(name)
	res := r.Resolve(ctx, name)
	if !res.Resolved() {
		logger.Warn("no user found, using raw mention", "name", name)
		return &model.RecipientMatch{
			Input:   name,
			Mention: "@" + name,
			Kind:    string(MatchNone),
		}
	}

	logger.Info("resolved recipient", "name", name, "user_id", res.User.ID, "real_name", res.User.RealName, "kind", res.Kind, "confidence", fmt.Sprintf("%.2f", res.Confidence))
	return &model.RecipientMatch{
		Input:      name,
		UserID:     res.User.ID,
		RealName:   res.User.RealName,
		Username:   res.User.Name,
		Mention:    "<@" + res.User.ID + ">",
		Confidence: res.Confidence,
		Kind:       string(res.Kind),
	}
}

func (r *RecipientResolver) Mention(ctx context.Context, name string) string {
	return r.Match(ctx, name).Mention
}
