package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"
)

const (
	docxFont     = "Yu Gothic"
	docxFontSize = 11
)

var (
	reHeading  = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	reBold     = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reBullet   = regexp.MustCompile(`^[\-\*]\s+(.+)$`)
	reNumbered = regexp.MustCompile(`^\d+\.\s+(.+)$`)
)

// archiveDocx writes a docx rendition of the minutes into the archive
// directory. Archiving is best-effort: a failure is logged and swallowed.
func (p *implPublisher) archiveDocx(ctx context.Context, m Minutes) {
	if p.poster.ArchiveDir == "" {
		return
	}
	if err := os.MkdirAll(p.poster.ArchiveDir, 0o755); err != nil {
		p.logger.Warn(ctx, "Minutes archive skipped: %v", err)
		return
	}

	name := fmt.Sprintf("minutes-%s.docx", time.Now().Format("20060102-150405"))
	path := filepath.Join(p.poster.ArchiveDir, name)

	title := "議事録"
	if m.Date != "" {
		title = "議事録 " + m.Date
	}
	if err := minutesToDocx(title, m, path); err != nil {
		p.logger.Warn(ctx, "Minutes archive failed for %s: %v", path, err)
		return
	}
	p.logger.Info(ctx, "Minutes archived to %s", path)
}

// minutesToDocx converts the markdown minutes (and the transcript, when
// present) to a styled docx file.
func minutesToDocx(title string, m Minutes, outputPath string) error {
	doc, err := godocx.NewDocument()
	if err != nil {
		return err
	}

	addStyledRun(doc.AddParagraph(""), title, true, 16)

	if len(m.Speakers) > 0 {
		p := doc.AddParagraph("")
		addRichText(p, "参加者: "+strings.Join(m.Speakers, ", "))
	}

	writeMarkdown(doc, m.Markdown)

	if m.Transcript != "" {
		doc.AddParagraph("")
		addStyledRun(doc.AddParagraph(""), "文字起こし", true, 15)
		for _, line := range strings.Split(m.Transcript, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				doc.AddParagraph("").AddText(trimmed).Font(docxFont).Size(docxFontSize).Color("000000")
			}
		}
	}

	return doc.SaveTo(outputPath)
}

func writeMarkdown(doc *docx.RootDoc, markdown string) {
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == "---" {
			continue
		}

		if m := reHeading.FindStringSubmatch(trimmed); m != nil {
			addStyledRun(doc.AddParagraph(""), m[2], true, headingSize(len(m[1])))
			continue
		}
		if m := reBullet.FindStringSubmatch(trimmed); m != nil {
			addRichText(doc.AddParagraph(""), "• "+m[1])
			continue
		}
		if m := reNumbered.FindStringSubmatch(trimmed); m != nil {
			addRichText(doc.AddParagraph(""), trimmed)
			continue
		}
		addRichText(doc.AddParagraph(""), trimmed)
	}
}

func headingSize(level int) uint64 {
	switch level {
	case 1:
		return 16
	case 2:
		return 14
	case 3:
		return 12
	default:
		return docxFontSize
	}
}

func addStyledRun(p *docx.Paragraph, text string, bold bool, size uint64) {
	run := p.AddText(cleanMarkdownInline(text)).Font(docxFont).Size(size).Color("000000")
	if bold {
		run.Bold(true)
	}
}

func addRichText(p *docx.Paragraph, text string) {
	parts := reBold.Split(text, -1)
	matches := reBold.FindAllStringSubmatch(text, -1)

	for i, part := range parts {
		if part != "" {
			p.AddText(cleanMarkdownInline(part)).Font(docxFont).Size(docxFontSize).Color("000000")
		}
		if i < len(matches) {
			p.AddText(cleanMarkdownInline(matches[i][1])).Font(docxFont).Size(docxFontSize).Color("000000").Bold(true)
		}
	}
}

func cleanMarkdownInline(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	s = strings.ReplaceAll(s, "`", "")
	return s
}
