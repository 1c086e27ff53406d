package analysis

import (
	"fmt"
	"strings"

	"github.com/spigell/jojun/internal/ai"
	"github.com/spigell/jojun/internal/prompts"
)

// decoration commonly wrapped around markers and labels by the model
const decoration = "-*#> \t"

// ParseBlocks splits a delimited reply into blocks. Each block is a marker
// line followed by the format's labels in order; a label value may continue
// over several lines. Blocks that break the grammar are returned with Raw
// and ParseError set. Non-blank text before the first marker becomes such a
// block as well.
func ParseBlocks(text string, format prompts.BlockFormat) []ai.Block {
	var (
		blocks   []ai.Block
		current  []string
		started  bool
		preamble []string
	)

	flush := func() {
		if started {
			blocks = append(blocks, parseBlock(current, format.Labels))
		}
		current = nil
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimLeft(strings.TrimSpace(line), decoration)
		if rest, ok := strings.CutPrefix(trimmed, format.Marker); ok {
			flush()
			started = true
			if rest = strings.Trim(rest, decoration); rest != "" {
				current = append(current, rest)
			}
			continue
		}
		if started {
			current = append(current, line)
		} else if strings.TrimSpace(line) != "" {
			preamble = append(preamble, line)
		}
	}
	flush()

	if len(preamble) > 0 {
		stray := ai.Block{
			Raw:        strings.TrimSpace(strings.Join(preamble, "\n")),
			ParseError: fmt.Sprintf("text outside of a %s block", format.Marker),
		}
		blocks = append([]ai.Block{stray}, blocks...)
	}
	return blocks
}

func parseBlock(lines []string, labels []string) ai.Block {
	block := ai.Block{Raw: strings.TrimSpace(strings.Join(lines, "\n"))}
	fail := func(format string, args ...any) ai.Block {
		block.Fields = nil
		block.ParseError = fmt.Sprintf(format, args...)
		return block
	}

	next := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if next < len(labels) {
			if value, ok := cutLabel(trimmed, labels[next]); ok {
				block.Fields = append(block.Fields, ai.Field{Label: labels[next], Value: value})
				next++
				continue
			}
		}
		for _, label := range labels {
			if _, ok := cutLabel(trimmed, label); ok {
				return fail("field %q is out of order", label)
			}
		}
		if len(block.Fields) == 0 {
			return fail("expected field %q", labels[0])
		}

		last := &block.Fields[len(block.Fields)-1]
		if last.Value == "" {
			last.Value = trimmed
		} else {
			last.Value += "\n" + trimmed
		}
	}

	if next < len(labels) {
		return fail("missing fields: %s", strings.Join(labels[next:], ", "))
	}
	return block
}

// cutLabel matches "Label: value", tolerating markdown emphasis and bullets.
func cutLabel(line, label string) (string, bool) {
	s := strings.TrimLeft(line, decoration)
	if len(s) < len(label) || !strings.EqualFold(s[:len(label)], label) {
		return "", false
	}
	rest := strings.TrimLeft(s[len(label):], "* ")
	after, ok := strings.CutPrefix(rest, ":")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(strings.TrimLeft(after, "* ")), true
}
