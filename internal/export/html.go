// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
)

var (
	codeBlockRegex  = regexp.MustCompile("```([a-zA-Z0-9_+-]*)[^\\n]*\\n([\\s\\S]*?)```")
	inlineCodeRegex = regexp.MustCompile("`([^`\\n]+)`")
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports documents to standalone HTML with embedded CSS.
// Fenced code blocks are highlighted with chroma.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a document to HTML.
func (e *HTMLExporter) Export(doc *Document) ([]byte, error) {
	if doc == nil || len(doc.Entries) == 0 {
		return nil, ErrNothingToExport
	}

	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}

	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(doc.Title)))
	sb.WriteString("    <meta name=\"generator\" content=\"ollamachat\">\n")
	sb.WriteString(e.css(theme))
	sb.WriteString("</head>\n")
	sb.WriteString(fmt.Sprintf("<body class=\"%s-theme\">\n", theme))
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(doc))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, entry := range doc.Entries {
		sb.WriteString(e.renderEntry(entry, theme))
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	sb.WriteString(fmt.Sprintf("            <p>Exported from <strong>ollamachat</strong> on %s</p>\n",
		doc.ExportedAt.Format("January 2, 2006 at 3:04 PM")))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderHeader(doc *Document) string {
	var sb strings.Builder

	sb.WriteString("        <header class=\"header\">\n")
	sb.WriteString(fmt.Sprintf("            <h1>%s</h1>\n", html.EscapeString(doc.Title)))
	sb.WriteString("            <div class=\"metadata\">\n")
	if doc.Model != "" {
		sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Model:</strong> %s</span>\n", html.EscapeString(doc.Model)))
	}
	if !doc.CreatedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", formatTimestamp(doc.CreatedAt)))
	}
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", len(doc.Entries)))
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")

	return sb.String()
}

func (e *HTMLExporter) renderEntry(entry Entry, theme string) string {
	var sb strings.Builder

	roleClass := html.EscapeString(strings.ToLower(entry.Role))
	sb.WriteString(fmt.Sprintf("            <div class=\"message %s-message\">\n", roleClass))
	sb.WriteString(fmt.Sprintf("                <div class=\"message-header\"><span class=\"role-label\">%s</span></div>\n",
		html.EscapeString(roleLabel(entry.Role))))

	if len(entry.Files) > 0 {
		sb.WriteString("                <ul class=\"attachments\">\n")
		for _, f := range entry.Files {
			sb.WriteString(fmt.Sprintf("                    <li>%s</li>\n", html.EscapeString(f)))
		}
		sb.WriteString("                </ul>\n")
	}

	sb.WriteString("                <div class=\"message-content\">\n")
	sb.WriteString(formatContent(entry.Content, theme))
	sb.WriteString("\n                </div>\n")
	sb.WriteString("            </div>\n")

	return sb.String()
}

// =============================================================================
// CONTENT FORMATTING
// =============================================================================

// formatContent renders prose as escaped paragraphs and fenced code blocks
// through chroma.
func formatContent(content, theme string) string {
	var sb strings.Builder

	last := 0
	for _, loc := range codeBlockRegex.FindAllStringSubmatchIndex(content, -1) {
		sb.WriteString(formatProse(content[last:loc[0]]))
		lang := content[loc[2]:loc[3]]
		code := content[loc[4]:loc[5]]
		sb.WriteString(highlightCode(lang, code, theme))
		last = loc[1]
	}
	sb.WriteString(formatProse(content[last:]))

	return sb.String()
}

// formatProse escapes text, marks inline code and splits paragraphs on
// blank lines.
func formatProse(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	var sb strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		escaped := html.EscapeString(para)
		escaped = inlineCodeRegex.ReplaceAllString(escaped, "<code class=\"inline-code\">$1</code>")
		escaped = strings.ReplaceAll(escaped, "\n", "<br>\n")
		sb.WriteString("<p>" + escaped + "</p>\n")
	}
	return sb.String()
}

// highlightCode renders a code block with chroma CSS classes.
func highlightCode(lang, code, theme string) string {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	label := ""
	if lang != "" {
		label = fmt.Sprintf("<div class=\"code-lang\">%s</div>", html.EscapeString(lang))
	}

	var buf bytes.Buffer
	iterator, err := lexer.Tokenise(nil, code)
	if err == nil {
		err = chromaFormatter().Format(&buf, chromaStyle(theme), iterator)
	}
	if err != nil {
		return fmt.Sprintf("<div class=\"code-block\">%s<pre><code>%s</code></pre></div>\n",
			label, html.EscapeString(code))
	}
	return fmt.Sprintf("<div class=\"code-block\">%s%s</div>\n", label, buf.String())
}

func chromaFormatter() *chromahtml.Formatter {
	return chromahtml.New(chromahtml.WithClasses(true), chromahtml.TabWidth(4))
}

func chromaStyle(theme string) *chroma.Style {
	name := "monokai"
	if theme == "light" {
		name = "github"
	}
	style := chromaStyles.Get(name)
	if style == nil {
		style = chromaStyles.Fallback
	}
	return style
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

func (e *HTMLExporter) css(theme string) string {
	var sb strings.Builder
	sb.WriteString("    <style>\n")
	sb.WriteString(baseCSS)

	var buf bytes.Buffer
	if err := chromaFormatter().WriteCSS(&buf, chromaStyle(theme)); err == nil {
		sb.WriteString(buf.String())
	}
	sb.WriteString("    </style>\n")
	return sb.String()
}

const baseCSS = `        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            --font-mono: "SF Mono", "Monaco", "Inconsolata", "Fira Code", "Source Code Pro", monospace;
        }
        .dark-theme {
            --bg-primary: #1a1b26; --bg-secondary: #24283b; --bg-tertiary: #414868;
            --text-primary: #c0caf5; --text-muted: #565f89; --border-color: #414868;
            --user-bg: #1f2335; --assistant-bg: #24283b; --accent: #7aa2f7;
        }
        .light-theme {
            --bg-primary: #ffffff; --bg-secondary: #f7f8fa; --bg-tertiary: #e1e4e8;
            --text-primary: #24292e; --text-muted: #6a737d; --border-color: #e1e4e8;
            --user-bg: #f6f8fa; --assistant-bg: #ffffff; --accent: #0366d6;
        }
        body { font-family: var(--font-sans); line-height: 1.6; color: var(--text-primary); background: var(--bg-primary); padding: 20px; }
        .container { max-width: 900px; margin: 0 auto; background: var(--bg-secondary); border-radius: 12px; overflow: hidden; }
        .header { padding: 32px; background: var(--bg-tertiary); border-bottom: 2px solid var(--border-color); }
        .header h1 { font-size: 28px; margin-bottom: 12px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 14px; color: var(--text-muted); }
        .conversation { padding: 24px; }
        .message { padding: 16px 20px; margin-bottom: 16px; border-radius: 8px; border: 1px solid var(--border-color); }
        .user-message { background: var(--user-bg); }
        .assistant-message { background: var(--assistant-bg); }
        .role-label { font-weight: 600; color: var(--accent); }
        .message-content p { margin: 8px 0; }
        .attachments { font-size: 13px; color: var(--text-muted); margin: 4px 0 0 20px; }
        .code-block { margin: 12px 0; border-radius: 6px; overflow-x: auto; }
        .code-block pre { padding: 12px; font-family: var(--font-mono); font-size: 14px; }
        .code-lang { font-size: 12px; padding: 4px 12px; color: var(--text-muted); background: var(--bg-tertiary); }
        .inline-code { font-family: var(--font-mono); padding: 1px 4px; border-radius: 3px; background: var(--bg-tertiary); }
        .footer { padding: 16px 32px; font-size: 13px; color: var(--text-muted); border-top: 1px solid var(--border-color); }
`
