package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/a3tai/pdf-assistant/internal/models"
)

// HelpReply is returned when no command matches. It contains no command tags
// so the assistant answers with guidance instead of running anything.
const HelpReply = "I can extract pages, merge, split, rotate, compress, watermark " +
	"or extract text from your PDFs. Try \"extract pages 1-3\" or \"rotate page 2 by 90 degrees\"."

var (
	rangePattern  = regexp.MustCompile(`(\d+)\s*(?:-|–|to|through)\s*(\d+)`)
	numberPattern = regexp.MustCompile(`\d+`)
	quotedPattern = regexp.MustCompile(`["“']([^"”']+)["”']`)
	everyPattern  = regexp.MustCompile(`(?:every|each|per)\s+(\d+)\s+pages?|(\d+)\s+pages?\s+(?:each|per)`)
	degreePattern = regexp.MustCompile(`\b(90|180|270)\b`)
)

// RuleGenerator maps keywords to commands without a model. It is used when
// no model is configured.
type RuleGenerator struct{}

// NewRuleGenerator creates a keyword based generator.
func NewRuleGenerator() *RuleGenerator {
	return &RuleGenerator{}
}

// Name implements Generator.
func (g *RuleGenerator) Name() string {
	return "rules"
}

// Generate implements Generator.
func (g *RuleGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg := strings.ToLower(req.Message)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(msg, w) {
				return true
			}
		}
		return false
	}

	switch {
	case has("merge", "combine", "join"):
		return formatCommand(models.OpMergePDFs, map[string]any{"merge_all": true})

	case has("split", "separate"):
		params := map[string]any{}
		if m := everyPattern.FindStringSubmatch(msg); m != nil {
			n := m[1]
			if n == "" {
				n = m[2]
			}
			params["pages_per_file"], _ = strconv.Atoi(n)
		}
		return formatCommand(models.OpSplitPDF, params)

	case has("rotate", "turn", "upside down"):
		rotation := 90
		switch {
		case degreePattern.MatchString(msg):
			rotation, _ = strconv.Atoi(degreePattern.FindString(msg))
		case has("upside down"):
			rotation = 180
		case has("counterclockwise", "counter-clockwise", "anticlockwise", "left"):
			rotation = 270
		}
		pages := pageNumbers(degreePattern.ReplaceAllString(msg, ""))
		if len(pages) == 0 {
			pages = allPages(req.PageCount)
		}
		return formatCommand(models.OpRotatePages, map[string]any{"pages": pages, "rotation": rotation})

	case has("watermark", "stamp"):
		text := "DRAFT"
		if m := quotedPattern.FindStringSubmatch(req.Message); m != nil {
			text = m[1]
		} else if has("confidential") {
			text = "CONFIDENTIAL"
		}
		params := map[string]any{"watermark_text": text}
		for _, pos := range []string{"top-left", "top-right", "bottom-left", "bottom-right"} {
			if has(pos, strings.ReplaceAll(pos, "-", " ")) {
				params["position"] = pos
				break
			}
		}
		return formatCommand(models.OpAddWatermark, params)

	case has("compress", "shrink", "smaller", "reduce", "optimize", "optimise"):
		return formatCommand(models.OpCompressPDF, map[string]any{})

	case has("text", "read", "content"):
		params := map[string]any{}
		if pages := pageNumbers(msg); len(pages) > 0 {
			params["page_numbers"] = pages
		}
		return formatCommand(models.OpExtractText, params)

	case has("extract", "keep", "pull", "page"):
		pages := pageNumbers(msg)
		if len(pages) == 0 {
			return HelpReply, nil
		}
		return formatCommand(models.OpExtractPages, map[string]any{"pages": pages})
	}

	return HelpReply, nil
}

func formatCommand(op models.OperationType, params map[string]any) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return FormatCommand(op, string(raw)), nil
}

// pageNumbers collects ranges and single numbers in order of appearance,
// without duplicates.
func pageNumbers(msg string) []int {
	seen := map[int]bool{}
	var pages []int
	add := func(n int) {
		if n > 0 && !seen[n] {
			seen[n] = true
			pages = append(pages, n)
		}
	}

	for _, m := range rangePattern.FindAllStringSubmatch(msg, -1) {
		from, _ := strconv.Atoi(m[1])
		to, _ := strconv.Atoi(m[2])
		if to < from || to-from > 1000 {
			continue
		}
		for p := from; p <= to; p++ {
			add(p)
		}
	}
	for _, s := range numberPattern.FindAllString(rangePattern.ReplaceAllString(msg, ""), -1) {
		n, _ := strconv.Atoi(s)
		add(n)
	}
	return pages
}

func allPages(count int) []int {
	if count < 1 {
		count = 1
	}
	pages := make([]int, count)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}
