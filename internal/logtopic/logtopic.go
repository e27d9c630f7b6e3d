// Package logtopic provides an slog.Handler that filters log records by a
// "topic" attribute, so a single daemon process can expose a -log flag that
// turns categories of logging on or off without separate loggers per
// subsystem.
package logtopic

import (
	"context"
	"log/slog"
	"strings"
)

// Handler wraps an slog.Handler and drops any record carrying a "topic"
// attribute that isn't in the enabled set. Records with no topic (startup
// lines, fatal errors) always pass through, and the special topic "all"
// disables filtering entirely.
type Handler struct {
	next    slog.Handler
	enabled map[string]bool
	topic   string // carried across WithAttrs when "topic" was set there
}

// New wraps next, passing through only records tagged with a topic in
// enabled (or untagged records). enabled may be nil, which filters every
// topic-tagged record and passes through only untagged ones.
func New(next slog.Handler, enabled map[string]bool) *Handler {
	return &Handler{next: next, enabled: enabled}
}

// ParseSpec builds the enabled-topic set from the daemon's -log flag value
// and -verbose flag: a comma-separated topic list, or "all" when verbose is
// set (verbose also merges with any topics named in spec).
func ParseSpec(spec string, verbose bool) map[string]bool {
	enabled := make(map[string]bool)
	if verbose {
		enabled["all"] = true
	}
	for _, t := range strings.Split(spec, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			enabled[t] = true
		}
	}
	return enabled
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if h.enabled["all"] {
		return h.next.Handle(ctx, r)
	}
	topic := h.topic
	if topic == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "topic" {
				topic = a.Value.String()
				return false
			}
			return true
		})
	}
	if topic != "" && !h.enabled[topic] {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	topic := h.topic
	for _, a := range attrs {
		if a.Key == "topic" {
			topic = a.Value.String()
		}
	}
	return &Handler{next: h.next.WithAttrs(attrs), enabled: h.enabled, topic: topic}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name), enabled: h.enabled, topic: h.topic}
}
