package chunker

import (
	"strings"
	"unicode"
)

// SplitConfig controls the sliding window used to chunk document text.
// Units are characters (runes); embedding context limits vary by provider,
// so both knobs come from configuration rather than constants.
type SplitConfig struct {
	// Window is the maximum chunk length in characters.
	Window int
	// Overlap is how many trailing characters of one chunk reappear at the
	// start of the next, so a fact spanning a boundary stays intact in at
	// least one chunk.
	Overlap int
}

// DefaultSplitConfig returns the splitter settings used when none are
// configured: a 1000-character window with a 200-character overlap.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		Window:  1000,
		Overlap: 200,
	}
}

func (c SplitConfig) normalized() SplitConfig {
	if c.Window <= 0 {
		c = DefaultSplitConfig()
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.Window {
		c.Overlap = c.Window / 5
	}
	return c
}

// Split cuts text into overlapping windows. Empty or whitespace-only text
// yields zero chunks; text shorter than one window yields a single chunk
// equal to the whole text. Window boundaries prefer the last whitespace run
// inside the window so words are not cut mid-rune-sequence.
func Split(text string, cfg SplitConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	cfg = cfg.normalized()

	runes := []rune(clean)
	if len(runes) <= cfg.Window {
		return []string{clean}
	}

	chunks := make([]string, 0, len(runes)/cfg.Window+1)
	start := 0
	for start < len(runes) {
		end := start + cfg.Window
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			cut := end
			minCut := start + cfg.Window/2
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
			end = cut
		}

		if end <= start {
			break
		}

		// Chunks are exact substrings of the input so that concatenating
		// their non-overlapping spans reproduces the text losslessly.
		chunks = append(chunks, string(runes[start:end]))

		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 && end-start > cfg.Overlap {
			nextStart = end - cfg.Overlap
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}
