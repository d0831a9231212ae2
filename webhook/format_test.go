// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/hookbridge/messaging"
)

func TestFormatPlain(t *testing.T) {
	formatter := NewFormatter()

	content, err := formatter.Format("deploy finished :tada:", "", true)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if content.MsgType != "m.text" {
		t.Errorf("MsgType = %q, want m.text", content.MsgType)
	}
	if content.Body != "deploy finished 🎉" {
		t.Errorf("Body = %q", content.Body)
	}
	if content.FormattedBody != "" {
		t.Errorf("plain format produced FormattedBody %q", content.FormattedBody)
	}
}

func TestFormatEmojiDisabled(t *testing.T) {
	formatter := NewFormatter()

	content, err := formatter.Format("literal :tada: text", "", false)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if content.Body != "literal :tada: text" {
		t.Errorf("Body = %q, want shortcode untouched", content.Body)
	}
}

func TestFormatUnknownShortcodePassesThrough(t *testing.T) {
	formatter := NewFormatter()

	content, err := formatter.Format(":not_a_real_shortcode:", "", true)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if content.Body != ":not_a_real_shortcode:" {
		t.Errorf("Body = %q", content.Body)
	}
}

func TestFormatHTML(t *testing.T) {
	formatter := NewFormatter()

	content, err := formatter.Format("<b>bold</b> &amp; <i>quiet</i>", FormatHTML, true)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if content.Format != messaging.FormatCustomHTML {
		t.Errorf("Format = %q", content.Format)
	}
	if content.FormattedBody != "<b>bold</b> &amp; <i>quiet</i>" {
		t.Errorf("FormattedBody = %q", content.FormattedBody)
	}
	// Fallback body is the tag-stripped, entity-resolved text.
	if content.Body != "bold & quiet" {
		t.Errorf("Body = %q, want stripped fallback", content.Body)
	}
}

func TestFormatMarkdown(t *testing.T) {
	formatter := NewFormatter()

	content, err := formatter.Format("build **passed** on `main`", FormatMarkdown, true)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if content.Format != messaging.FormatCustomHTML {
		t.Errorf("Format = %q", content.Format)
	}
	if !strings.Contains(content.FormattedBody, "<strong>passed</strong>") {
		t.Errorf("FormattedBody = %q, want <strong> rendering", content.FormattedBody)
	}
	if !strings.Contains(content.FormattedBody, "<code>main</code>") {
		t.Errorf("FormattedBody = %q, want <code> rendering", content.FormattedBody)
	}
	// The raw markdown is the plain-text fallback.
	if content.Body != "build **passed** on `main`" {
		t.Errorf("Body = %q", content.Body)
	}
}

func TestFormatMarkdownGFMStrikethrough(t *testing.T) {
	formatter := NewFormatter()

	content, err := formatter.Format("~~cancelled~~", FormatMarkdown, true)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !strings.Contains(content.FormattedBody, "<del>cancelled</del>") {
		t.Errorf("FormattedBody = %q, want GFM strikethrough", content.FormattedBody)
	}
}

func TestFormatRejectsUnknownFormat(t *testing.T) {
	formatter := NewFormatter()

	if _, err := formatter.Format("text", "rtf", true); err == nil {
		t.Error("Format accepted unknown format, want error")
	}
}

func TestLoadEmojiTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emoji.jsonc")
	table := `{
		// site-specific additions
		"shipit": "🐿️",
		"tada": "🎊", // override the default
		"rocket": "", /* remove the default */
	}`
	if err := os.WriteFile(path, []byte(table), 0o644); err != nil {
		t.Fatalf("writing table: %v", err)
	}

	formatter := NewFormatter()
	if err := formatter.LoadEmojiTable(path); err != nil {
		t.Fatalf("LoadEmojiTable: %v", err)
	}

	cases := []struct {
		input, want string
	}{
		{":shipit:", "🐿️"},       // added
		{":tada:", "🎊"},          // overridden
		{":rocket:", ":rocket:"}, // removed
		{":fire:", "🔥"},          // default survives
	}
	for _, tc := range cases {
		if got := formatter.substituteEmoji(tc.input); got != tc.want {
			t.Errorf("substituteEmoji(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestLoadEmojiTableMissingFile(t *testing.T) {
	formatter := NewFormatter()
	if err := formatter.LoadEmojiTable(filepath.Join(t.TempDir(), "absent.jsonc")); err == nil {
		t.Error("LoadEmojiTable succeeded on missing file, want error")
	}
}

func TestStripTags(t *testing.T) {
	cases := []struct {
		input, want string
	}{
		{"<p>hello</p>", "hello"},
		{"a <a href=\"x\">link</a> here", "a link here"},
		{"no markup", "no markup"},
		{"&lt;escaped&gt;", "<escaped>"},
	}
	for _, tc := range cases {
		if got := stripTags(tc.input); got != tc.want {
			t.Errorf("stripTags(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
