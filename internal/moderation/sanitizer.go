// Package moderation decides whether a user caption may be sent to the model.
// A rejected caption is replaced with a fixed default; the sanitizer never
// fails a render.
package moderation

import (
	"context"
	"fmt"
	"log"
	"strings"

	goaway "github.com/TwiN/go-away"
)

const (
	// DefaultCaption replaces any caption that fails moderation.
	DefaultCaption = "a satellite image"

	// RequiredPrefix must start every accepted caption (case-sensitive).
	RequiredPrefix = "a satellite image"
)

// DefaultDenylist holds tokens rejected case-insensitively anywhere in a caption.
var DefaultDenylist = []string{"trump"}

// Detector flags profane text.
type Detector interface {
	IsProfane(s string) bool
}

// NewProfanityDetector returns the go-away detector used by default.
func NewProfanityDetector() Detector {
	return goaway.NewProfanityDetector()
}

// NoProfanity flags nothing. Use it to switch the profanity rule off.
type NoProfanity struct{}

func (NoProfanity) IsProfane(string) bool { return false }

// Options configures a Sanitizer. Zero values select the defaults.
type Options struct {
	DefaultCaption string
	RequiredPrefix string
	Denylist       []string

	// Profanity is the profanity detector. Nil selects go-away.
	Profanity Detector

	// Oracle is consulted last. Nil approves everything.
	Oracle Oracle
}

// rule rejects a caption by returning a non-empty reason.
type rule struct {
	name  string
	check func(ctx context.Context, caption string) string
}

// Sanitizer applies an ordered chain of rules, stopping at the first
// rejection. Sanitize(Sanitize(c)) == Sanitize(c) for any c provided the
// oracle is deterministic for a given caption (CachedOracle guarantees this).
type Sanitizer struct {
	defaultCaption string
	rules          []rule
}

// NewSanitizer builds the rule chain: prefix, denylist, profanity, oracle.
func NewSanitizer(opts Options) *Sanitizer {
	if opts.DefaultCaption == "" {
		opts.DefaultCaption = DefaultCaption
	}
	if opts.RequiredPrefix == "" {
		opts.RequiredPrefix = RequiredPrefix
	}
	if opts.Denylist == nil {
		opts.Denylist = DefaultDenylist
	}
	if opts.Profanity == nil {
		opts.Profanity = NewProfanityDetector()
	}
	if opts.Oracle == nil {
		opts.Oracle = AllowAll{}
	}

	denylist := make([]string, 0, len(opts.Denylist))
	for _, token := range opts.Denylist {
		if token = strings.ToLower(strings.TrimSpace(token)); token != "" {
			denylist = append(denylist, token)
		}
	}

	s := &Sanitizer{defaultCaption: opts.DefaultCaption}
	s.rules = []rule{
		{name: "prefix", check: func(_ context.Context, caption string) string {
			if caption == opts.DefaultCaption {
				return "caption is the default"
			}
			if !strings.HasPrefix(caption, opts.RequiredPrefix) {
				return fmt.Sprintf("caption does not start with %q", opts.RequiredPrefix)
			}
			return ""
		}},
		{name: "denylist", check: func(_ context.Context, caption string) string {
			lower := strings.ToLower(caption)
			for _, token := range denylist {
				if strings.Contains(lower, token) {
					return fmt.Sprintf("caption contains banned token %q", token)
				}
			}
			return ""
		}},
		{name: "profanity", check: func(_ context.Context, caption string) string {
			if opts.Profanity.IsProfane(caption) {
				return "caption is profane"
			}
			return ""
		}},
		{name: "oracle", check: func(ctx context.Context, caption string) string {
			approved, err := opts.Oracle.Approve(ctx, caption)
			if err != nil {
				return fmt.Sprintf("oracle unavailable: %v", err)
			}
			if !approved {
				return "oracle rejected caption"
			}
			return ""
		}},
	}
	return s
}

// Default returns the caption substituted for rejected input.
func (s *Sanitizer) Default() string {
	return s.defaultCaption
}

// Sanitize returns caption unchanged if every rule accepts it, otherwise the
// default caption. Each substitution is logged with the rejecting rule.
func (s *Sanitizer) Sanitize(ctx context.Context, caption string) string {
	for _, r := range s.rules {
		if reason := r.check(ctx, caption); reason != "" {
			log.Printf("[Moderation] Fixed caption: %q -> %q (%s: %s)", caption, s.defaultCaption, r.name, reason)
			return s.defaultCaption
		}
	}
	return caption
}
