// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import "strings"

// defaultChunkChars bounds one model call when no engine limit is
// configured. Transformer context windows degrade sharply past this size.
const defaultChunkChars = 800

// chunk is one model-call unit with its absolute offset in the original
// text.
type chunk struct {
	text   string
	offset int
}

// span is a half-open byte range into the original text.
type span struct {
	start, end int
}

// buildChunks splits text into model-sized chunks: paragraphs on
// newlines, sentences after terminal punctuation, then greedy grouping up
// to limit characters (defaultChunkChars when limit is zero). A single
// sentence over the limit is split on word boundaries. Chunks are slices
// of the original text, so every entity offset shifts back exactly.
func buildChunks(text string, limit int) []chunk {
	if limit <= 0 {
		limit = defaultChunkChars
	}
	var chunks []chunk
	paraStart := 0
	for {
		nl := strings.IndexByte(text[paraStart:], '\n')
		paraEnd := len(text)
		if nl >= 0 {
			paraEnd = paraStart + nl
		}
		para := text[paraStart:paraEnd]
		if strings.TrimSpace(para) != "" {
			for _, sp := range groupSentences(text, sentenceSpans(para, paraStart), limit) {
				chunks = append(chunks, chunk{text: text[sp.start:sp.end], offset: sp.start})
			}
		}
		if nl < 0 {
			break
		}
		paraStart = paraEnd + 1
	}
	return chunks
}

// sentenceSpans locates sentence boundaries: a '.', '!' or '?' followed by
// whitespace ends a sentence. Spans are absolute (base is the paragraph's
// offset in the full text) and trimmed of surrounding whitespace.
func sentenceSpans(para string, base int) []span {
	var spans []span
	start := 0
	for i := 0; i < len(para); i++ {
		c := para[i]
		if (c == '.' || c == '!' || c == '?') && i+1 < len(para) && isSpaceByte(para[i+1]) {
			spans = appendTrimmed(spans, para, base, start, i+1)
			start = i + 1
		}
	}
	return appendTrimmed(spans, para, base, start, len(para))
}

func appendTrimmed(spans []span, para string, base, start, end int) []span {
	for start < end && isSpaceByte(para[start]) {
		start++
	}
	for end > start && isSpaceByte(para[end-1]) {
		end--
	}
	if start < end {
		spans = append(spans, span{base + start, base + end})
	}
	return spans
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\v' || c == '\f'
}

// groupSentences packs adjacent sentence spans greedily while the combined
// original-text slice stays within limit, splitting any oversized sentence
// on word boundaries.
func groupSentences(text string, sentences []span, limit int) []span {
	var groups []span
	var cur span
	open := false
	flush := func() {
		if open {
			groups = append(groups, cur)
			open = false
		}
	}
	for _, s := range sentences {
		if s.end-s.start > limit {
			flush()
			groups = append(groups, splitLongSentence(text, s, limit)...)
			continue
		}
		if open && s.end-cur.start > limit {
			flush()
		}
		if !open {
			cur = s
			open = true
		} else {
			cur.end = s.end
		}
	}
	flush()
	return groups
}

// splitLongSentence cuts one oversized sentence into word-bounded spans
// each at most limit characters long.
func splitLongSentence(text string, s span, limit int) []span {
	var pieces []span
	start := s.start
	for start < s.end {
		if s.end-start <= limit {
			pieces = append(pieces, span{start, s.end})
			break
		}
		cut := start + limit
		// Back up to the last space inside the window.
		wordCut := cut
		for wordCut > start && !isSpaceByte(text[wordCut]) {
			wordCut--
		}
		if wordCut > start {
			cut = wordCut
		}
		pieces = append(pieces, span{start, cut})
		start = cut
		for start < s.end && isSpaceByte(text[start]) {
			start++
		}
	}
	return pieces
}
