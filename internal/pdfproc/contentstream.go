// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdfproc

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
)

// hitMargin widens redaction rectangles slightly so glyphs on the exact
// boundary are still removed.
const hitMargin = 1.0

type csToken struct {
	raw   []byte
	op    bool // alphabetic operator, ' or "
	num   float64
	isNum bool
}

// tokenizeContent splits a content stream into operand and operator
// tokens, preserving raw bytes. Inline image data (BI..EI) is emitted as a
// single opaque token.
func tokenizeContent(data []byte) []csToken {
	var toks []csToken
	i := 0
	for i < len(data) {
		c := data[i]
		switch {
		case isWhite(c):
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			start := i
			depth := 0
			for i < len(data) {
				switch data[i] {
				case '\\':
					i++
				case '(':
					depth++
				case ')':
					depth--
				}
				i++
				if depth == 0 {
					break
				}
			}
			toks = append(toks, csToken{raw: data[start:i]})
		case c == '<':
			start := i
			if i+1 < len(data) && data[i+1] == '<' {
				i += 2
				toks = append(toks, csToken{raw: data[start:i]})
				break
			}
			for i < len(data) && data[i] != '>' {
				i++
			}
			if i < len(data) {
				i++
			}
			toks = append(toks, csToken{raw: data[start:i]})
		case c == '>':
			start := i
			if i+1 < len(data) && data[i+1] == '>' {
				i += 2
			} else {
				i++
			}
			toks = append(toks, csToken{raw: data[start:i]})
		case c == '[' || c == ']' || c == '{' || c == '}':
			toks = append(toks, csToken{raw: data[i : i+1]})
			i++
		case c == '/':
			start := i
			i++
			for i < len(data) && !isWhite(data[i]) && !isDelim(data[i]) {
				i++
			}
			toks = append(toks, csToken{raw: data[start:i]})
		case c == '\'' || c == '"':
			toks = append(toks, csToken{raw: data[i : i+1], op: true})
			i++
		default:
			start := i
			for i < len(data) && !isWhite(data[i]) && !isDelim(data[i]) && data[i] != '\'' && data[i] != '"' {
				i++
			}
			raw := data[start:i]
			if n, err := strconv.ParseFloat(string(raw), 64); err == nil {
				toks = append(toks, csToken{raw: raw, num: n, isNum: true})
				break
			}
			tok := csToken{raw: raw, op: true}
			toks = append(toks, tok)
			if string(raw) == "ID" {
				// Inline image payload runs until the EI keyword.
				end := bytes.Index(data[i:], []byte("EI"))
				if end < 0 {
					end = len(data) - i
				} else {
					end += 2
				}
				toks = append(toks, csToken{raw: data[i : i+end]})
				i += end
			}
		}
	}
	return toks
}

// textState tracks the translation components of the text and line
// matrices plus leading, enough to locate each show operator's origin for
// unrotated text.
type textState struct {
	tmX, tmY   float64
	tlmX, tlmY float64
	leading    float64
}

func (s *textState) begin() { s.tmX, s.tmY, s.tlmX, s.tlmY = 0, 0, 0, 0 }

func (s *textState) setMatrix(e, f float64) {
	s.tmX, s.tmY, s.tlmX, s.tlmY = e, f, e, f
}
func (s *textState) nextLine(tx, ty float64) {
	s.tlmX += tx
	s.tlmY += ty
	s.tmX, s.tmY = s.tlmX, s.tlmY
}

func inRects(x, y float64, rects []document.BoundingBox) bool {
	for _, r := range rects {
		if x >= r.X0-hitMargin && x <= r.X1+hitMargin && y >= r.Y0-hitMargin && y <= r.Y1+hitMargin {
			return true
		}
	}
	return false
}

// filterContent removes every text-show operator whose origin falls inside
// one of the redaction rectangles, leaving the rest of the stream intact.
// The sensitive glyph bytes are gone from the output, not merely covered.
func filterContent(data []byte, rects []document.BoundingBox) []byte {
	toks := tokenizeContent(data)
	var out bytes.Buffer
	var operands []csToken
	var st textState

	num := func(idx int) float64 {
		// idx counts back from the end of the operand list.
		at := len(operands) - idx
		if at < 0 || at >= len(operands) || !operands[at].isNum {
			return 0
		}
		return operands[at].num
	}

	emit := func(opRaw []byte) {
		for _, t := range operands {
			out.Write(t.raw)
			out.WriteByte(' ')
		}
		out.Write(opRaw)
		out.WriteByte('\n')
	}

	for _, t := range toks {
		if !t.op {
			operands = append(operands, t)
			continue
		}
		op := string(t.raw)
		drop := false
		switch op {
		case "BT":
			st.begin()
		case "Tm":
			st.setMatrix(num(2), num(1))
		case "Td":
			st.nextLine(num(2), num(1))
		case "TD":
			st.leading = -num(1)
			st.nextLine(num(2), num(1))
		case "T*":
			st.nextLine(0, -st.leading)
		case "TL":
			st.leading = num(1)
		case "'", "\"":
			st.nextLine(0, -st.leading)
			drop = inRects(st.tmX, st.tmY, rects)
		case "Tj", "TJ":
			drop = inRects(st.tmX, st.tmY, rects)
		}
		if !drop {
			emit(t.raw)
		}
		operands = operands[:0]
	}
	return out.Bytes()
}

// appendOverlays adds opaque black fills over the redaction rectangles at
// the end of the stream, after any open text object.
func appendOverlays(data []byte, rects []document.BoundingBox) []byte {
	if len(rects) == 0 {
		return data
	}
	var out bytes.Buffer
	out.Write(data)
	out.WriteString("\nq\n0 0 0 rg\n")
	for _, r := range rects {
		fmt.Fprintf(&out, "%.2f %.2f %.2f %.2f re f\n", r.X0, r.Y0, r.X1-r.X0, r.Y1-r.Y0)
	}
	out.WriteString("Q\n")
	return out.Bytes()
}
