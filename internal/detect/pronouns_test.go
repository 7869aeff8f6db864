// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"testing"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
)

func TestFilterPronounEntitiesDropsPronounOnlyPersons(t *testing.T) {
	in := []document.Entity{
		{EntityType: "PERSON-H", OriginalText: "han"},
		{EntityType: "PERSON-H", OriginalText: "Hun "},
		{EntityType: "person", OriginalText: "jeg og du"},
		{EntityType: "PERSON-H", OriginalText: "Kari Nordmann"},
		{EntityType: "EMAIL_H", OriginalText: "du"}, // not a person type
	}
	out := filterPronounEntities(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 survivors, got %d: %+v", len(out), out)
	}
	if out[0].OriginalText != "Kari Nordmann" || out[1].EntityType != "EMAIL_H" {
		t.Errorf("wrong survivors: %+v", out)
	}
}

func TestIsPronounOnly(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"han", true},
		{"Hun,", true},
		{"jeg og du", false}, // "og" is not a pronoun
		{"vår deres", true},
		{"", false},
		{"Kari", false},
	}
	for _, c := range cases {
		if got := isPronounOnly(c.text); got != c.want {
			t.Errorf("isPronounOnly(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}
