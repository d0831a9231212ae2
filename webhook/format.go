// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bureau-foundation/hookbridge/messaging"
)

// Payload formats accepted on the wire. Anything else is rejected
// before touching the homeserver.
const (
	FormatPlain    = "plain"
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

// markdownInstance is initialized once and reused. The goldmark
// configuration never changes and the parser is safe to share.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownInstance
}

// defaultEmoji is the built-in shortcode table. Deliberately small:
// the common reaction set Slack-style senders actually use. Deployments
// extend or override it with a JSONC file (see LoadEmojiTable).
var defaultEmoji = map[string]string{
	"tada":                     "🎉",
	"rocket":                   "🚀",
	"fire":                     "🔥",
	"warning":                  "⚠️",
	"x":                        "❌",
	"heavy_check_mark":         "✔️",
	"white_check_mark":         "✅",
	"thumbsup":                 "👍",
	"thumbsdown":               "👎",
	"bug":                      "🐛",
	"wrench":                   "🔧",
	"bell":                     "🔔",
	"lock":                     "🔒",
	"eyes":                     "👀",
	"sparkles":                 "✨",
	"boom":                     "💥",
	"zap":                      "⚡",
	"hourglass":                "⏳",
	"package":                  "📦",
	"memo":                     "📝",
	"chart_with_upwards_trend": "📈",
	"red_circle":               "🔴",
	"green_circle":             "🟢",
}

var shortcodePattern = regexp.MustCompile(`:([a-z0-9_+-]+):`)

// Formatter turns inbound payload text into Matrix message content:
// emoji shortcode substitution followed by format-specific rendering.
type Formatter struct {
	emoji map[string]string
}

// NewFormatter returns a formatter using the built-in emoji table.
func NewFormatter() *Formatter {
	return &Formatter{emoji: defaultEmoji}
}

// LoadEmojiTable reads a JSONC file mapping shortcodes (without
// colons) to replacement strings and overlays it on the built-in
// table. Entries in the file win on conflict; an entry with an empty
// value removes the shortcode.
func (f *Formatter) LoadEmojiTable(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("webhook: reading emoji table %s: %w", path, err)
	}

	var overrides map[string]string
	if err := json.Unmarshal(jsonc.ToJSON(data), &overrides); err != nil {
		return fmt.Errorf("webhook: parsing emoji table %s: %w", path, err)
	}

	merged := make(map[string]string, len(defaultEmoji)+len(overrides))
	for shortcode, replacement := range f.emoji {
		merged[shortcode] = replacement
	}
	for shortcode, replacement := range overrides {
		if replacement == "" {
			delete(merged, shortcode)
			continue
		}
		merged[shortcode] = replacement
	}
	f.emoji = merged
	return nil
}

// substituteEmoji replaces :shortcode: occurrences with their emoji.
// Unknown shortcodes pass through untouched.
func (f *Formatter) substituteEmoji(text string) string {
	return shortcodePattern.ReplaceAllStringFunc(text, func(match string) string {
		shortcode := match[1 : len(match)-1]
		if replacement, ok := f.emoji[shortcode]; ok {
			return replacement
		}
		return match
	})
}

// Format renders payload text into message content. The format must be
// one of FormatPlain, FormatHTML, or FormatMarkdown; empty means
// plain. Emoji substitution happens before rendering so shortcodes
// work in all three formats.
func (f *Formatter) Format(text, format string, emoji bool) (messaging.MessageContent, error) {
	if emoji {
		text = f.substituteEmoji(text)
	}

	switch format {
	case "", FormatPlain:
		return messaging.NewTextMessage(text), nil

	case FormatHTML:
		// The sender supplied the HTML; the plain-text fallback for
		// clients that can't render it is the tag-stripped body.
		return messaging.NewHTMLMessage(stripTags(text), text), nil

	case FormatMarkdown:
		var rendered bytes.Buffer
		if err := getMarkdown().Convert([]byte(text), &rendered); err != nil {
			return messaging.MessageContent{}, fmt.Errorf("webhook: rendering markdown: %w", err)
		}
		htmlBody := strings.TrimRight(rendered.String(), "\n")
		return messaging.NewHTMLMessage(text, htmlBody), nil

	default:
		return messaging.MessageContent{}, fmt.Errorf("webhook: unknown format %q", format)
	}
}

// stripTags removes HTML tags and resolves entities, producing the
// plain-text fallback body. Not a sanitizer — the output is only ever
// used as msgtype body text, never re-rendered as HTML.
func stripTags(input string) string {
	var output strings.Builder
	inTag := false
	for _, r := range input {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			output.WriteRune(r)
		}
	}
	return html.UnescapeString(output.String())
}
