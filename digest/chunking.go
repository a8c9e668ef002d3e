package digest

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

// ChunkResult is one chunk of a larger text
type ChunkResult struct {
	ChunkIndex    int
	ChunkCount    int
	ChunkText     string
	SpanStart     int
	SpanEnd       int
	OverlapTokens int
	WordCount     int
	TokenCount    int
}

// ChunkText splits text into overlapping chunks for vector embeddings.
// Targets 800-1000 tokens per chunk with 15% overlap, preferring to split
// at markdown headings, then paragraphs, then sentences, then whitespace.
// Positions are tracked in runes so multi-byte text splits cleanly;
// SpanStart/SpanEnd are byte offsets into the original string.
func ChunkText(text string, targetTokens int, overlapPercent float64) []ChunkResult {
	if targetTokens <= 0 {
		targetTokens = 900
	}
	if overlapPercent <= 0 {
		overlapPercent = 0.15
	}

	overlapTokens := int(float64(targetTokens) * overlapPercent)

	// Estimate: 4 chars per token
	charsPerToken := 4
	targetChars := targetTokens * charsPerToken
	overlapChars := overlapTokens * charsPerToken

	runes := []rune(text)
	textLen := len(runes)

	if textLen <= targetChars {
		return []ChunkResult{
			{
				ChunkIndex: 0,
				ChunkCount: 1,
				ChunkText:  text,
				SpanStart:  0,
				SpanEnd:    len(text),
				WordCount:  countWords(text),
				TokenCount: estimateTokens(text),
			},
		}
	}

	var chunks []ChunkResult
	currentPosition := 0 // rune offset
	chunkIndex := 0

	for currentPosition < textLen {
		isLastChunk := currentPosition+targetChars >= textLen

		var chunkEnd int
		if isLastChunk {
			chunkEnd = textLen
		} else {
			chunkEnd = findBoundary(runes, currentPosition+targetChars)
		}

		chunkText := string(runes[currentPosition:chunkEnd])

		chunks = append(chunks, ChunkResult{
			ChunkIndex: chunkIndex,
			ChunkText:  chunkText,
			SpanStart:  len(string(runes[:currentPosition])),
			SpanEnd:    len(string(runes[:chunkEnd])),
			WordCount:  countWords(chunkText),
			TokenCount: estimateTokens(chunkText),
		})

		if isLastChunk {
			break
		}

		// Step back by the overlap, but always make progress
		next := chunkEnd - overlapChars
		if next <= currentPosition {
			next = currentPosition + 1
		}
		currentPosition = next
		chunkIndex++
	}

	chunkCount := len(chunks)
	for i := range chunks {
		chunks[i].ChunkCount = chunkCount
		if i > 0 {
			chunks[i].OverlapTokens = overlapTokens
		}
	}

	return chunks
}

var (
	headingPattern    = regexp.MustCompile(`\n#{1,6}\s+`)
	paragraphPattern  = regexp.MustCompile(`\n\n+`)
	sentencePattern   = regexp.MustCompile(`[.!?]\s+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// findBoundary picks the best split position near the target, in runes.
// Priority: markdown heading > paragraph break > sentence end > whitespace.
func findBoundary(runes []rune, targetPosition int) int {
	searchWindow := 800
	start := max(0, targetPosition-searchWindow)
	end := min(len(runes), targetPosition+searchWindow)

	searchText := string(runes[start:end])
	searchRunes := []rune(searchText)

	// byteToRune converts a byte offset in searchText to a rune offset in
	// the full text
	byteToRune := func(bytePos int) int {
		byteCount := 0
		for i, r := range searchRunes {
			if byteCount >= bytePos {
				return start + i
			}
			byteCount += len(string(r))
		}
		return start + len(searchRunes)
	}

	type candidate struct {
		pattern *regexp.Regexp
		skip    int
	}
	for _, c := range []candidate{
		{headingPattern, 1},
		{paragraphPattern, 2},
		{sentencePattern, 2},
		{whitespacePattern, 1},
	} {
		matches := c.pattern.FindAllStringIndex(searchText, -1)
		if len(matches) == 0 {
			continue
		}
		last := matches[len(matches)-1]
		if last[0] > len(searchText)/2 {
			return byteToRune(last[0] + c.skip)
		}
	}

	return targetPosition
}

// countWords counts whitespace-separated words
func countWords(text string) int {
	return len(strings.Fields(text))
}

// estimateTokens approximates token count at 4 chars per token
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// hashString returns the hex SHA256 of a string
func hashString(text string) string {
	hash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", hash)
}
