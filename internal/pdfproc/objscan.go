// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdfproc

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// rawObject is one indirect object, body bytes between "N G obj" and
// "endobj".
type rawObject struct {
	num  int
	gen  int
	body []byte
}

// objectTable is a scanned document: every indirect object plus the
// trailer references needed to rewrite the file.
type objectTable struct {
	objs    map[int]*rawObject
	rootRef int
	infoRef int
}

func (t *objectTable) orderedNums() []int {
	nums := make([]int, 0, len(t.objs))
	for n := range t.objs {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func isWhite(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// scanObjects walks the raw bytes for "N G obj ... endobj" spans. It does
// not need a valid xref table, so it also recovers documents with damaged
// cross-reference data.
func scanObjects(data []byte) (*objectTable, error) {
	tbl := &objectTable{objs: make(map[int]*rawObject)}

	pos := 0
	for {
		i := bytes.Index(data[pos:], []byte("obj"))
		if i < 0 {
			break
		}
		at := pos + i
		pos = at + 3

		// Walk back over "N G " directly before the keyword.
		j := at
		for j > 0 && isWhite(data[j-1]) {
			j--
		}
		genEnd := j
		for j > 0 && isDigit(data[j-1]) {
			j--
		}
		genStart := j
		if genStart == genEnd {
			continue
		}
		for j > 0 && isWhite(data[j-1]) {
			j--
		}
		numEnd := j
		for j > 0 && isDigit(data[j-1]) {
			j--
		}
		numStart := j
		if numStart == numEnd {
			continue
		}
		// "endobj" contains "obj"; an alpha right before the match means
		// this is not the keyword.
		if numEnd == genEnd && genStart == numStart {
			continue
		}
		if at > 0 && !isWhite(data[at-1]) {
			continue
		}

		num, err := strconv.Atoi(string(data[numStart:numEnd]))
		if err != nil {
			continue
		}
		gen, err := strconv.Atoi(string(data[genStart:genEnd]))
		if err != nil {
			continue
		}

		end := bytes.Index(data[pos:], []byte("endobj"))
		if end < 0 {
			break
		}
		body := bytes.TrimSpace(data[pos : pos+end])
		tbl.objs[num] = &rawObject{num: num, gen: gen, body: body}
		pos = pos + end + len("endobj")
	}

	if len(tbl.objs) == 0 {
		return nil, fmt.Errorf("pdfproc: no objects found")
	}

	tbl.findTrailerRefs(data)
	if err := tbl.expandObjectStreams(); err != nil {
		return nil, err
	}
	if tbl.rootRef == 0 {
		// No usable trailer: locate the catalog directly.
		for num, o := range tbl.objs {
			if dictName(o.body, "Type") == "Catalog" {
				tbl.rootRef = num
				break
			}
		}
	}
	if tbl.rootRef == 0 {
		return nil, fmt.Errorf("pdfproc: document catalog not found")
	}
	return tbl, nil
}

// findTrailerRefs pulls /Root and /Info from the classic trailer or, for
// cross-reference-stream files, from any /Type /XRef object dictionary.
func (t *objectTable) findTrailerRefs(data []byte) {
	if i := bytes.LastIndex(data, []byte("trailer")); i >= 0 {
		d := data[i:]
		if n, ok := dictRef(d, "Root"); ok {
			t.rootRef = n
		}
		if n, ok := dictRef(d, "Info"); ok {
			t.infoRef = n
		}
	}
	if t.rootRef != 0 {
		return
	}
	for _, o := range t.objs {
		if dictName(o.body, "Type") != "XRef" {
			continue
		}
		if n, ok := dictRef(o.body, "Root"); ok {
			t.rootRef = n
		}
		if n, ok := dictRef(o.body, "Info"); ok {
			t.infoRef = n
		}
	}
}

// expandObjectStreams inflates /Type /ObjStm containers, promotes their
// embedded objects to regular ones, and drops the containers together with
// xref streams. The rewrite emits a classic cross-reference table, so
// neither survives in the output.
func (t *objectTable) expandObjectStreams() error {
	var drop []int
	for num, o := range t.objs {
		switch dictName(o.body, "Type") {
		case "XRef":
			drop = append(drop, num)
		case "ObjStm":
			data, err := streamData(o.body)
			if err != nil {
				return fmt.Errorf("pdfproc: object stream %d: %w", num, err)
			}
			n, _ := dictInt(o.body, "N")
			first, _ := dictInt(o.body, "First")
			if err := t.promoteEmbedded(data, n, first); err != nil {
				return fmt.Errorf("pdfproc: object stream %d: %w", num, err)
			}
			drop = append(drop, num)
		}
	}
	for _, num := range drop {
		delete(t.objs, num)
	}
	return nil
}

// promoteEmbedded parses the "num offset" header pairs of an inflated
// object stream and registers each embedded object.
func (t *objectTable) promoteEmbedded(data []byte, n, first int) error {
	if first <= 0 || first > len(data) {
		return fmt.Errorf("bad First offset %d", first)
	}
	header := data[:first]
	fields := bytes.Fields(header)
	if len(fields) < 2*n {
		return fmt.Errorf("truncated header: want %d pairs, have %d fields", n, len(fields))
	}

	type entry struct{ num, off int }
	entries := make([]entry, 0, n)
	for i := 0; i < n; i++ {
		num, err := strconv.Atoi(string(fields[2*i]))
		if err != nil {
			return err
		}
		off, err := strconv.Atoi(string(fields[2*i+1]))
		if err != nil {
			return err
		}
		entries = append(entries, entry{num, off})
	}
	for i, e := range entries {
		start := first + e.off
		end := len(data)
		if i+1 < len(entries) {
			end = first + entries[i+1].off
		}
		if start > len(data) || end > len(data) || start > end {
			return fmt.Errorf("embedded object %d out of range", e.num)
		}
		if _, exists := t.objs[e.num]; exists {
			continue
		}
		t.objs[e.num] = &rawObject{num: e.num, body: bytes.TrimSpace(data[start:end])}
	}
	return nil
}

// streamData returns the decoded stream payload of an object body,
// inflating FlateDecode content. The /Length entry bounds the payload when
// present and plausible; otherwise the endstream keyword does. A filter
// chain this code cannot decode is an error: passing raw compressed bytes
// downstream would let text survive the redaction rewrite unseen.
func streamData(body []byte) ([]byte, error) {
	i := bytes.Index(body, []byte("stream"))
	if i < 0 {
		return nil, fmt.Errorf("no stream keyword")
	}
	start := i + len("stream")
	if start < len(body) && body[start] == '\r' {
		start++
	}
	if start < len(body) && body[start] == '\n' {
		start++
	}

	var payload []byte
	if n, ok := dictInt(body[:i], "Length"); ok && start+n <= len(body) {
		payload = body[start : start+n]
	} else {
		end := bytes.LastIndex(body, []byte("endstream"))
		if end < start {
			return nil, fmt.Errorf("no endstream keyword")
		}
		payload = bytes.TrimRight(body[start:end], "\r\n")
	}

	v, ok := dictValueStart(body[:i], "Filter")
	if !ok {
		return payload, nil
	}
	filters := filterNames(v)
	switch {
	case len(filters) == 0:
		// An empty /Filter [] array means unfiltered.
		if end := bytes.IndexByte(v, ']'); v[0] == '[' && end > 0 && len(bytes.TrimSpace(v[1:end])) == 0 {
			return payload, nil
		}
		return nil, fmt.Errorf("unreadable filter entry")
	case len(filters) == 1 && filters[0] == "FlateDecode":
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("flate: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("flate: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported filter chain %v", filters)
	}
}

// filterNames parses a /Filter value: a single name or an array of names.
// Anything else (such as an indirect reference) yields nil.
func filterNames(v []byte) []string {
	if len(v) == 0 {
		return nil
	}
	if v[0] == '/' {
		j := 1
		for j < len(v) && !isWhite(v[j]) && !isDelim(v[j]) {
			j++
		}
		if j == 1 {
			return nil
		}
		return []string{string(v[1:j])}
	}
	if v[0] != '[' {
		return nil
	}
	end := bytes.IndexByte(v, ']')
	if end < 0 {
		return nil
	}
	var names []string
	inner := v[1:end]
	for j := 0; j < len(inner); j++ {
		if inner[j] != '/' {
			continue
		}
		k := j + 1
		for k < len(inner) && !isWhite(inner[k]) && !isDelim(inner[k]) {
			k++
		}
		if k > j+1 {
			names = append(names, string(inner[j+1:k]))
		}
		j = k - 1
	}
	return names
}

// dictName returns the name value following /Key in a dictionary, without
// the leading slash.
func dictName(dict []byte, key string) string {
	v, ok := dictValueStart(dict, key)
	if !ok || len(v) == 0 || v[0] != '/' {
		return ""
	}
	j := 1
	for j < len(v) && !isWhite(v[j]) && !isDelim(v[j]) {
		j++
	}
	return string(v[1:j])
}

// dictInt returns the integer value following /Key.
func dictInt(dict []byte, key string) (int, bool) {
	v, ok := dictValueStart(dict, key)
	if !ok {
		return 0, false
	}
	j := 0
	for j < len(v) && (isDigit(v[j]) || (j == 0 && v[j] == '-')) {
		j++
	}
	n, err := strconv.Atoi(string(v[:j]))
	if err != nil {
		return 0, false
	}
	return n, true
}

// dictRef returns the object number of an "N G R" reference following /Key.
func dictRef(dict []byte, key string) (int, bool) {
	v, ok := dictValueStart(dict, key)
	if !ok {
		return 0, false
	}
	fields := bytes.Fields(v)
	if len(fields) < 3 || string(fields[2]) != "R" && !bytes.HasPrefix(fields[2], []byte("R")) {
		return 0, false
	}
	n, err := strconv.Atoi(string(fields[0]))
	if err != nil {
		return 0, false
	}
	return n, true
}

// dictRefs returns the object numbers in the array value of /Key, or a
// single reference as a one-element slice.
func dictRefs(dict []byte, key string) []int {
	v, ok := dictValueStart(dict, key)
	if !ok {
		return nil
	}
	if v[0] == '[' {
		end := bytes.IndexByte(v, ']')
		if end < 0 {
			return nil
		}
		return parseRefList(v[1:end])
	}
	if n, ok := dictRef(dict, key); ok {
		return []int{n}
	}
	return nil
}

func parseRefList(v []byte) []int {
	fields := bytes.Fields(v)
	var refs []int
	for i := 0; i+2 < len(fields); {
		if string(fields[i+2]) == "R" {
			if n, err := strconv.Atoi(string(fields[i])); err == nil {
				refs = append(refs, n)
			}
			i += 3
			continue
		}
		i++
	}
	return refs
}

// dictValueStart locates the bytes immediately after "/Key" and any
// whitespace, bounded by the rest of the dictionary.
func dictValueStart(dict []byte, key string) ([]byte, bool) {
	needle := []byte("/" + key)
	pos := 0
	for {
		i := bytes.Index(dict[pos:], needle)
		if i < 0 {
			return nil, false
		}
		at := pos + i + len(needle)
		// Reject prefix matches like /Type1 for /Type.
		if at < len(dict) && !isWhite(dict[at]) && !isDelim(dict[at]) {
			pos = at
			continue
		}
		for at < len(dict) && isWhite(dict[at]) {
			at++
		}
		if at >= len(dict) {
			return nil, false
		}
		return dict[at:], true
	}
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
