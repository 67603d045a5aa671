package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nimasrn/report-dispatcher/internal/model"
	xhttp "github.com/nimasrn/report-dispatcher/pkg/http"
)

type errorResponse struct {
	Error      string   `json:"error"`
	Details    []string `json:"details,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// NewValidator registers the request tags shared by every handler.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if value == "" {
			return true
		}
		_, err := model.ParseClock(value)
		return err == nil
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if value == "" {
			return true
		}
		_, err := parseDate(value)
		return err == nil
	})
	return v
}

func validationDetails(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_if":
			out = append(out, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			out = append(out, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		case "hhmm":
			out = append(out, fmt.Sprintf("%s must be HH:MM", fe.Field()))
		case "url":
			out = append(out, fmt.Sprintf("%s must be a URL", fe.Field()))
		default:
			out = append(out, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return out
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	return json.Unmarshal(ctx.PostBody(), dst)
}

// readStrictJSON rejects fields dst does not declare.
func readStrictJSON(ctx *xhttp.RequestCtx, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(ctx.PostBody()))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	xhttp.WriteError(ctx, status, msg)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.QueryArgs().Peek(key)))
}

// queryInt returns def when the parameter is absent and an error when it is
// present but not a positive integer.
func queryInt(ctx *xhttp.RequestCtx, key string, def int) (int, error) {
	v := query(ctx, key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

func pathParam(ctx *xhttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

func parseDate(s string) (string, error) {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return "", err
	}
	return t.Format(model.DateLayout), nil
}
