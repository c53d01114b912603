package ingest

import "strings"

// tokenPerWord approximates the tokenizer's token-to-word ratio for
// mixed German/English text.
const tokenPerWord = 1.3

// splitChunks cuts a document text into retrieval-sized pieces. Paragraph
// boundaries are respected where possible; paragraphs are packed together
// until the word budget is reached, and an oversized paragraph is split on
// sentence boundaries.
func splitChunks(text string, maxWords int) []string {
	if maxWords < 1 {
		maxWords = 1
	}

	var chunks []string
	var current []string
	currentWords := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = nil
			currentWords = 0
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		words := len(strings.Fields(para))

		if words > maxWords {
			flush()
			chunks = append(chunks, splitSentences(para, maxWords)...)
			continue
		}
		if currentWords+words > maxWords {
			flush()
		}
		current = append(current, para)
		currentWords += words
	}
	flush()

	return chunks
}

// splitSentences packs sentences of one oversized paragraph into chunks.
// A single sentence beyond the budget becomes its own chunk rather than
// being cut mid-sentence.
func splitSentences(para string, maxWords int) []string {
	var chunks []string
	var current []string
	currentWords := 0

	for _, sentence := range splitOnTerminators(para) {
		words := len(strings.Fields(sentence))
		if currentWords+words > maxWords && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = nil
			currentWords = 0
		}
		current = append(current, sentence)
		currentWords += words
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

func splitOnTerminators(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Keep abbreviation-style dots glued to the next word.
		if i+1 < len(runes) && runes[i+1] != ' ' && runes[i+1] != '\n' {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func estimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * tokenPerWord)
}
