// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdfproc

import (
	"sort"
	"strings"

	"github.com/Geek0x0/pdf"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
)

// lineTolerance is the maximum baseline Y distance for two runs to be
// considered part of the same line, as a fraction of the font size.
const lineTolerance = 0.5

// gapFactor is the maximum horizontal gap between two runs of the same
// word, as a fraction of the font size.
const gapFactor = 0.3

// assembleWords turns raw positioned text runs into words with bounding
// boxes. Runs are grouped into lines by baseline Y, ordered left to right
// within a line, and merged while the horizontal gap stays below the
// font-size-relative threshold. Whitespace-only runs separate words and
// are never emitted.
func assembleWords(runs []pdf.Text) []document.Word {
	if len(runs) == 0 {
		return nil
	}

	type line struct {
		y    float64
		runs []pdf.Text
	}
	var lines []*line
	for _, t := range runs {
		tol := t.FontSize * lineTolerance
		if tol <= 0 {
			tol = 2
		}
		var found *line
		for _, l := range lines {
			if t.Y >= l.y-tol && t.Y <= l.y+tol {
				found = l
				break
			}
		}
		if found == nil {
			found = &line{y: t.Y}
			lines = append(lines, found)
		}
		found.runs = append(found.runs, t)
	}

	// Top of page first. PDF Y grows upward.
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y > lines[j].y })

	var words []document.Word
	for _, l := range lines {
		sort.SliceStable(l.runs, func(i, j int) bool { return l.runs[i].X < l.runs[j].X })

		var cur document.Word
		var prevEnd float64
		open := false

		flush := func() {
			if open && strings.TrimSpace(cur.Text) != "" {
				words = append(words, cur)
			}
			open = false
		}

		for _, t := range l.runs {
			if strings.TrimSpace(t.S) == "" {
				flush()
				prevEnd = t.X + t.W
				continue
			}
			gap := t.FontSize * gapFactor
			if gap <= 0 {
				gap = 1
			}
			if open && t.X-prevEnd <= gap {
				cur.Text += t.S
				if x1 := t.X + t.W; x1 > cur.X1 {
					cur.X1 = x1
				}
				if t.Y < cur.Y0 {
					cur.Y0 = t.Y
				}
				if y1 := t.Y + t.FontSize; y1 > cur.Y1 {
					cur.Y1 = y1
				}
			} else {
				flush()
				cur = document.Word{
					Text: t.S,
					X0:   t.X,
					Y0:   t.Y,
					X1:   t.X + t.W,
					Y1:   t.Y + t.FontSize,
				}
				open = true
			}
			prevEnd = t.X + t.W
		}
		flush()
	}
	return words
}
