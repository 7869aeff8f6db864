// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdfproc

import (
	"testing"

	"github.com/Geek0x0/pdf"
)

func run(s string, x, y, w float64) pdf.Text {
	return pdf.Text{S: s, X: x, Y: y, W: w, FontSize: 12}
}

func TestAssembleWordsMergesAdjacentRuns(t *testing.T) {
	words := assembleWords([]pdf.Text{
		run("He", 10, 700, 12),
		run("llo", 22, 700, 16),
		run(" ", 38, 700, 4),
		run("world", 44, 700, 30),
	})
	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %d: %+v", len(words), words)
	}
	if words[0].Text != "Hello" || words[1].Text != "world" {
		t.Errorf("unexpected words: %q %q", words[0].Text, words[1].Text)
	}
	if words[0].X0 != 10 || words[0].X1 != 38 {
		t.Errorf("unexpected bbox for first word: %+v", words[0].BBox())
	}
	if words[0].Y1 != 712 {
		t.Errorf("expected Y1 = baseline + font size, got %v", words[0].Y1)
	}
}

func TestAssembleWordsSplitsOnLargeGap(t *testing.T) {
	words := assembleWords([]pdf.Text{
		run("left", 10, 700, 20),
		run("right", 200, 700, 25),
	})
	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(words))
	}
}

func TestAssembleWordsOrdersLinesTopDown(t *testing.T) {
	words := assembleWords([]pdf.Text{
		run("lower", 10, 100, 20),
		run("upper", 10, 700, 20),
	})
	if len(words) != 2 || words[0].Text != "upper" || words[1].Text != "lower" {
		t.Errorf("expected top line first, got %+v", words)
	}
}

func TestAssembleWordsDropsWhitespaceOnly(t *testing.T) {
	words := assembleWords([]pdf.Text{
		run("  ", 10, 700, 8),
		run("\t", 20, 700, 4),
	})
	if len(words) != 0 {
		t.Errorf("expected no words, got %+v", words)
	}
}

func TestAssembleWordsEmptyInput(t *testing.T) {
	if words := assembleWords(nil); words != nil {
		t.Errorf("expected nil, got %+v", words)
	}
}
