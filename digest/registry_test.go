package digest

import "testing"

func TestDefaultRegistryOrder(t *testing.T) {
	registry := DefaultRegistry()

	want := []string{
		"url-crawl",
		"doc-to-markdown",
		"doc-to-screenshot",
		"image-ocr",
		"speech-recognition",
		"url-crawl-summary",
		"tags",
		"slug",
		"search-keyword",
		"search-semantic",
	}

	all := registry.All()
	if len(all) != len(want) {
		t.Fatalf("expected %d digesters, got %d", len(want), len(all))
	}
	for i, d := range all {
		if d.Name() != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], d.Name())
		}
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&fakeDigester{name: "tags"}); err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(&fakeDigester{name: "tags"}); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestRegistryGet(t *testing.T) {
	registry := DefaultRegistry()

	if registry.Get("tags") == nil {
		t.Error("expected tags digester")
	}
	if registry.Get("nonexistent") != nil {
		t.Error("expected nil for unknown digester")
	}
}

func TestAllOutputNamesIncludesMultiOutput(t *testing.T) {
	registry := DefaultRegistry()
	names := registry.AllOutputNames()

	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}

	// url-crawl fills two rows instead of one named after itself
	if !seen["url-crawl-content"] || !seen["url-crawl-screenshot"] {
		t.Errorf("expected url-crawl output rows, got %v", names)
	}
	if seen["url-crawl"] {
		t.Error("url-crawl itself should not be a row name")
	}
	if !seen["search-keyword"] || !seen["search-semantic"] {
		t.Error("expected search rows")
	}
}

func TestDescribeAll(t *testing.T) {
	infos := DefaultRegistry().DescribeAll()
	if len(infos) != 10 {
		t.Fatalf("expected 10 digesters, got %d", len(infos))
	}
	for _, info := range infos {
		if info.Name == "" || info.Label == "" || len(info.Outputs) == 0 {
			t.Errorf("incomplete info %+v", info)
		}
	}
}
