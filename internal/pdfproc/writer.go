// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdfproc

import (
	"bytes"
	"fmt"
)

// rewritePDF serializes the object table as a fresh file: header, objects
// in ascending number order, a classic cross-reference table and trailer.
// Nothing from the input file survives except the object bodies handed in,
// so removed content cannot linger in unreferenced byte ranges.
func rewritePDF(tbl *objectTable) []byte {
	var out bytes.Buffer
	out.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	nums := tbl.orderedNums()
	maxNum := 0
	offsets := make(map[int]int)
	for _, num := range nums {
		if num > maxNum {
			maxNum = num
		}
		offsets[num] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n", num)
		out.Write(tbl.objs[num].body)
		out.WriteString("\nendobj\n")
	}

	xrefOff := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n", maxNum+1)
	out.WriteString("0000000000 65535 f \n")
	for num := 1; num <= maxNum; num++ {
		if off, ok := offsets[num]; ok {
			fmt.Fprintf(&out, "%010d 00000 n \n", off)
		} else {
			out.WriteString("0000000000 65535 f \n")
		}
	}

	out.WriteString("trailer\n<< /Size ")
	fmt.Fprintf(&out, "%d /Root %d 0 R", maxNum+1, tbl.rootRef)
	if tbl.infoRef != 0 {
		fmt.Fprintf(&out, " /Info %d 0 R", tbl.infoRef)
	}
	out.WriteString(" >>\nstartxref\n")
	fmt.Fprintf(&out, "%d\n%%%%EOF\n", xrefOff)
	return out.Bytes()
}

// rebuildStream replaces an object body with an uncompressed stream whose
// dictionary carries only the new length. Content streams need no other
// entries.
func rebuildStream(payload []byte) []byte {
	var out bytes.Buffer
	fmt.Fprintf(&out, "<< /Length %d >>\nstream\n", len(payload))
	out.Write(payload)
	out.WriteString("\nendstream")
	return out.Bytes()
}
