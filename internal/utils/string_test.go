package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestNormalizeEmailSubject(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain subject", "Quarterly report", "Quarterly report"},
		{"single reply prefix", "Re: Quarterly report", "Quarterly report"},
		{"forward prefix", "Fwd: Quarterly report", "Quarterly report"},
		{"short forward prefix", "FW: Quarterly report", "Quarterly report"},
		{"stacked prefixes", "Re: Fwd: Re: Quarterly report", "Quarterly report"},
		{"numbered reply prefix", "Re[4]: Quarterly report", "Quarterly report"},
		{"case insensitive", "RE: quarterly report", "quarterly report"},
		{"prefix mid subject stays", "Update Re: the report", "Update Re: the report"},
		{"surrounding whitespace", "  Re:   Quarterly report  ", "Quarterly report"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, NormalizeEmailSubject(tt.input))
		})
	}
}

func TestNormalizeMessageID(t *testing.T) {
	require.Equal(t, "abc@example.com", NormalizeMessageID("<abc@example.com>"))
	require.Equal(t, "abc@example.com", NormalizeMessageID("  <abc@example.com>  "))
	require.Equal(t, "abc@example.com", NormalizeMessageID("abc@example.com"))
	require.Equal(t, "", NormalizeMessageID(""))
}

func TestSplitReferences(t *testing.T) {
	t.Run("space separated", func(t *testing.T) {
		refs := SplitReferences("<a@x.com> <b@x.com> <c@x.com>")
		require.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, refs)
	})

	t.Run("folded header with commas", func(t *testing.T) {
		refs := SplitReferences("<a@x.com>,\r\n <b@x.com>,\n\t<c@x.com>")
		require.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, refs)
	})

	t.Run("duplicates removed preserving order", func(t *testing.T) {
		refs := SplitReferences("<a@x.com> <b@x.com> <a@x.com>")
		require.Equal(t, []string{"a@x.com", "b@x.com"}, refs)
	})

	t.Run("empty input", func(t *testing.T) {
		require.Empty(t, SplitReferences(""))
		require.Empty(t, SplitReferences("   "))
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain name", "invoice.pdf", "invoice.pdf"},
		{"path traversal", "../../etc/passwd", "etcpasswd"},
		{"windows path", `C:\Users\victim\report.docx`, "CUsersvictimreport.docx"},
		{"whitespace collapsed", "my  final   report.pdf", "my_final_report.pdf"},
		{"control characters stripped", "inv\x00oice\x1f.pdf", "invoice.pdf"},
		{"leading dots trimmed", "...hidden", "hidden"},
		{"empty becomes placeholder", "", "attachment"},
		{"only separators becomes placeholder", "///", "attachment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}

	t.Run("long name truncated", func(t *testing.T) {
		long := strings.Repeat("a", 500) + ".pdf"
		out := SanitizeFilename(long)
		require.Len(t, out, 120)
	})

	t.Run("multibyte name truncated on rune boundary", func(t *testing.T) {
		// 2-byte runes; 120 bytes falls mid-rune.
		long := "x" + strings.Repeat("é", 200)
		out := SanitizeFilename(long)
		require.True(t, utf8.ValidString(out))
		require.LessOrEqual(t, len(out), 120)
		require.Greater(t, len(out), 110)
	})
}

func TestGenerateMessageID(t *testing.T) {
	id := GenerateMessageID("example.com", "acct_1/INBOX/42")
	require.True(t, strings.HasSuffix(id, "@example.com"))
	require.NotContains(t, id, "<")

	other := GenerateMessageID("example.com", "acct_1/INBOX/42")
	require.NotEqual(t, id, other)
}
