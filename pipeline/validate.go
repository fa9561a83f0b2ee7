package pipeline

import (
	"github.com/AnTengye/contractgraph/model"
)

// Verdict is the outcome of a validation check. Reason explains a failed
// check.
type Verdict struct {
	OK     bool
	Reason string
}

func pass() Verdict { return Verdict{OK: true} }

func fail(reason string) Verdict { return Verdict{Reason: reason} }

// ValidateSource checks that a structured document has pages and that at
// least one page carries text.
func ValidateSource(doc *model.Document) Verdict {
	switch {
	case doc == nil:
		return fail("structured document is missing")
	case len(doc.Pages) == 0:
		return fail("structured document has no pages")
	case !doc.HasText():
		return fail("structured document pages have no text")
	}
	return pass()
}

// ValidateExtraction checks that extraction produced articles and that at
// least one of them has content.
func ValidateExtraction(articles []model.Article) Verdict {
	if len(articles) == 0 {
		return fail("no articles extracted")
	}
	for i := range articles {
		if articles[i].HasContent() {
			return pass()
		}
	}
	return fail("extracted articles have no content")
}
