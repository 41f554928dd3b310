package model

import "testing"

func TestSourceValidateVariants(t *testing.T) {
	article := Source{EntryType: SourceArticle, ID: "a1", Title: "t", Author: "au", Year: "2020", Journal: "J", Pages: "1-2"}
	if err := article.Validate(); err != nil {
		t.Errorf("expected valid article source, got %v", err)
	}

	missingJournal := Source{EntryType: SourceArticle, ID: "a2", Title: "t", Author: "au", Year: "2020", Pages: "1-2"}
	if err := missingJournal.Validate(); err == nil {
		t.Error("expected error for article missing journal")
	}

	misc := Source{EntryType: SourceMisc, ID: "m1", Title: "t", Author: "au", Year: "2020", URL: "https://example.com"}
	if err := misc.Validate(); err != nil {
		t.Errorf("expected valid misc source, got %v", err)
	}

	missingURL := Source{EntryType: SourceMisc, ID: "m2", Title: "t", Author: "au", Year: "2020"}
	if err := missingURL.Validate(); err == nil {
		t.Error("expected error for misc missing url")
	}

	inproc := Source{EntryType: SourceInProceedings, ID: "p1", Title: "t", Author: "au", Year: "2020", BookTitle: "B", Pages: "1"}
	if err := inproc.Validate(); err != nil {
		t.Errorf("expected valid inproceedings source, got %v", err)
	}
}
