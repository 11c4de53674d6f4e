package knowledge

import "strings"

// DefaultMaxChunkLength is the chunk size budget used by the uploader.
const DefaultMaxChunkLength = 2500

// ChunkText splits a document into chunks of at most maxLen characters.
// Paragraphs (blank-line separated) are packed together while they fit;
// oversized paragraphs are split at sentence boundaries.
func ChunkText(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxChunkLength
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		switch {
		case len(paragraph) > maxLen:
			flush()
			chunks = append(chunks, chunkSentences(paragraph, maxLen)...)
		case current.Len() > 0 && current.Len()+len(paragraph) > maxLen:
			flush()
			current.WriteString(paragraph)
		default:
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(paragraph)
		}
	}
	flush()
	return chunks
}

// chunkSentences packs sentences of an oversized paragraph into chunks of at
// most maxLen characters. A sentence longer than maxLen becomes its own chunk.
func chunkSentences(paragraph string, maxLen int) []string {
	var chunks []string
	var current strings.Builder

	for _, sentence := range splitSentences(paragraph) {
		if current.Len() > 0 && current.Len()+1+len(sentence) > maxLen {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitSentences splits text after terminal punctuation followed by
// whitespace.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' && runes[i+1] != '\n' && runes[i+1] != '\t' {
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}
