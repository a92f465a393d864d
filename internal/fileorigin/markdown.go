package fileorigin

import (
	"html"
	"regexp"
	"strings"
)

// StripFrontMatter removes a leading "---"-delimited YAML front-matter
// block, if present.
func StripFrontMatter(src string) string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	if !strings.HasPrefix(src, "---\n") && src != "---" {
		return src
	}
	rest := strings.TrimPrefix(src, "---\n")
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		if strings.HasSuffix(rest, "\n---") {
			return ""
		}
		return src
	}
	return rest[end+len("\n---\n"):]
}

// RenderMarkdown renders a minimal HTML document body from markdown
// source: headings, lists, code fences, and the common inline spans
// (bold, italic, code, links). No syntax highlighting or diagram
// rendering — a file preview doesn't need either.
func RenderMarkdown(src string) string {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	var out strings.Builder
	var paragraph []string
	var listItems []string
	listType := ""
	inCodeFence := false
	var codeLines []string

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		out.WriteString("<p>")
		out.WriteString(renderInline(strings.TrimSpace(strings.Join(paragraph, " "))))
		out.WriteString("</p>\n")
		paragraph = nil
	}
	flushList := func() {
		if len(listItems) == 0 {
			return
		}
		tag := "ul"
		if listType == "ol" {
			tag = "ol"
		}
		out.WriteString("<" + tag + ">\n")
		for _, item := range listItems {
			out.WriteString("<li>" + renderInline(item) + "</li>\n")
		}
		out.WriteString("</" + tag + ">\n")
		listItems = nil
		listType = ""
	}

	headingRe := regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	ulRe := regexp.MustCompile(`^[-*+]\s+(.*)$`)
	olRe := regexp.MustCompile(`^\d+\.\s+(.*)$`)

	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")

		if strings.HasPrefix(strings.TrimSpace(trimmed), "```") {
			if inCodeFence {
				out.WriteString("<pre><code>" + html.EscapeString(strings.Join(codeLines, "\n")) + "</code></pre>\n")
				codeLines = nil
				inCodeFence = false
			} else {
				flushParagraph()
				flushList()
				inCodeFence = true
			}
			continue
		}
		if inCodeFence {
			codeLines = append(codeLines, line)
			continue
		}

		if strings.TrimSpace(trimmed) == "" {
			flushParagraph()
			flushList()
			continue
		}
		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			flushParagraph()
			flushList()
			level := len(m[1])
			out.WriteString("<h" + itoa(level) + ">" + renderInline(m[2]) + "</h" + itoa(level) + ">\n")
			continue
		}
		if m := ulRe.FindStringSubmatch(trimmed); m != nil {
			flushParagraph()
			if listType == "ol" {
				flushList()
			}
			listType = "ul"
			listItems = append(listItems, m[1])
			continue
		}
		if m := olRe.FindStringSubmatch(trimmed); m != nil {
			flushParagraph()
			if listType == "ul" {
				flushList()
			}
			listType = "ol"
			listItems = append(listItems, m[1])
			continue
		}

		flushList()
		paragraph = append(paragraph, trimmed)
	}
	flushParagraph()
	flushList()
	if inCodeFence {
		out.WriteString("<pre><code>" + html.EscapeString(strings.Join(codeLines, "\n")) + "</code></pre>\n")
	}
	return out.String()
}

var (
	boldRe   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe = regexp.MustCompile(`\*([^*]+)\*`)
	codeRe   = regexp.MustCompile("`([^`]+)`")
	linkRe   = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)
)

func renderInline(s string) string {
	s = html.EscapeString(s)
	s = linkRe.ReplaceAllString(s, `<a href="$2">$1</a>`)
	s = boldRe.ReplaceAllString(s, "<strong>$1</strong>")
	s = italicRe.ReplaceAllString(s, "<em>$1</em>")
	s = codeRe.ReplaceAllString(s, "<code>$1</code>")
	return s
}

func itoa(n int) string {
	digits := "0123456789"
	if n < 10 {
		return string(digits[n])
	}
	return string(digits[n/10]) + string(digits[n%10])
}

// PageHTML wraps a rendered body in a minimal standalone HTML page.
func PageHTML(title, body string) []byte {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title></head><body>\n")
	b.WriteString(body)
	b.WriteString("\n</body></html>\n")
	return []byte(b.String())
}
