// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdfproc

import "fmt"

// pageObjects walks the page tree from the catalog and returns page object
// numbers in document order.
func pageObjects(tbl *objectTable) ([]int, error) {
	root, ok := tbl.objs[tbl.rootRef]
	if !ok {
		return nil, fmt.Errorf("pdfproc: catalog object %d missing", tbl.rootRef)
	}
	pagesRef, ok := dictRef(root.body, "Pages")
	if !ok {
		return nil, fmt.Errorf("pdfproc: catalog has no page tree")
	}

	var pages []int
	seen := make(map[int]bool)
	var walk func(num int) error
	walk = func(num int) error {
		if seen[num] {
			return fmt.Errorf("pdfproc: page tree cycle at object %d", num)
		}
		seen[num] = true
		node, ok := tbl.objs[num]
		if !ok {
			return fmt.Errorf("pdfproc: page tree object %d missing", num)
		}
		switch dictName(node.body, "Type") {
		case "Pages":
			for _, kid := range dictRefs(node.body, "Kids") {
				if err := walk(kid); err != nil {
					return err
				}
			}
		case "Page":
			pages = append(pages, num)
		default:
			return fmt.Errorf("pdfproc: unexpected node type in page tree at object %d", num)
		}
		return nil
	}
	if err := walk(pagesRef); err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	return pages, nil
}

// contentObjects resolves a page object's /Contents to stream object
// numbers, in order.
func contentObjects(tbl *objectTable, pageNum int) []int {
	page, ok := tbl.objs[pageNum]
	if !ok {
		return nil
	}
	return dictRefs(page.body, "Contents")
}
