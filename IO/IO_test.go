package IO

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/manningwu07/NMT/params"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestVocabDeterminism(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "train.en.bpe")
	b := filepath.Join(dir, "train.de.bpe")
	writeFile(t, a, "the cat sat\nthe dog\n")
	writeFile(t, b, "der hund <UNK> the\nder\n")

	counts, err := BuildVocab([]string{a, b})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "vocab.txt")
	if err := WriteVocab(counts, path); err != nil {
		t.Fatal(err)
	}
	v, err := ReadVocab(path)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{params.SOS, params.EOS, params.UNK, "the", "der", "cat", "sat", "dog", "hund"}
	if !slices.Equal(v.IDToToken, want) {
		t.Fatalf("got %v, want %v", v.IDToToken, want)
	}
	for i, tok := range want {
		if v.TokenToID[tok] != i {
			t.Fatalf("%q has id %d, want %d", tok, v.TokenToID[tok], i)
		}
	}
	for i := 4; i < len(want); i++ {
		if counts.Count(want[i]) > counts.Count(want[i-1]) {
			t.Fatalf("%q sorted after a rarer token", want[i])
		}
	}
}

func TestReadVocabPlainLines(t *testing.T) {
	v, err := readVocab(strings.NewReader("<SOS>\n<EOS>\n<UNK>\nhallo\nwelt"))
	if err != nil {
		t.Fatal(err)
	}
	if VocabLookup(v, "welt") != 4 || VocabLookup(v, "mond") != params.UNKID {
		t.Fatalf("unexpected lookups in %v", v.TokenToID)
	}
}

func TestReadVocabRejectsMalformed(t *testing.T) {
	for name, content := range map[string]string{
		"empty":         "",
		"too short":     "<SOS>\n<EOS>\n",
		"wrong order":   "<EOS>\n<SOS>\n<UNK>\n",
		"missing token": "<SOS>\n<EOS>\n<UNK>\n\t3\n",
	} {
		if _, err := readVocab(strings.NewReader(content)); !errors.Is(err, ErrMalformedVocab) {
			t.Fatalf("%s: expected ErrMalformedVocab, got %v", name, err)
		}
	}
	if _, err := ReadVocab(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("missing vocab must be an error")
	}
}

func testVocab(t *testing.T) params.Vocabulary {
	t.Helper()
	v, err := readVocab(strings.NewReader("<SOS>\n<EOS>\n<UNK>\nthe\t9\ncat\t4\nsat\t1\n"))
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestVectorizeRoundTrip(t *testing.T) {
	v := testVocab(t)
	ids := Vectorize("the  cat\tsat on", v, true)
	if !slices.Equal(ids, []int{params.SOSID, 3, 4, 5, params.UNKID, params.EOSID}) {
		t.Fatalf("got %v", ids)
	}
	line, err := Devectorize(ids, v, true)
	if err != nil {
		t.Fatal(err)
	}
	if line != "the cat sat <UNK>" {
		t.Fatalf("got %q", line)
	}

	raw, _ := Devectorize([]int{3, 1}, v, false)
	if raw != "the <EOS>" {
		t.Fatalf("without unwrap got %q", raw)
	}
	// unwrap stops at the first end marker
	cut, _ := Devectorize([]int{0, 3, 1, 4, 1}, v, true)
	if cut != "the" {
		t.Fatalf("got %q", cut)
	}
}

func TestDevectorizeUnknownID(t *testing.T) {
	v := testVocab(t)
	for _, id := range []int{-1, 6, 1000} {
		if _, err := Devectorize([]int{0, id}, v, true); !errors.Is(err, ErrUnknownID) {
			t.Fatalf("id %d: expected ErrUnknownID, got %v", id, err)
		}
	}
}

func TestVectorizedFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.en.vec")
	seqs := [][]int{{0, 5, 7, 1}, {}, {0, 31999, 1}}
	if err := WriteVectorized(path, seqs); err != nil {
		t.Fatal(err)
	}
	got, err := ReadVectorized(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(seqs) {
		t.Fatalf("got %d sequences", len(got))
	}
	for i := range seqs {
		if !slices.Equal(got[i], seqs[i]) {
			t.Fatalf("sequence %d: got %v, want %v", i, got[i], seqs[i])
		}
	}

	truncated := filepath.Join(t.TempDir(), "bad.vec")
	raw, _ := os.ReadFile(path)
	writeFile(t, truncated, string(raw[:len(raw)-2]))
	if _, err := ReadVectorized(truncated); err == nil {
		t.Fatal("truncated file must be an error")
	}
}

func TestVectorizeFilesAndLoadDatasets(t *testing.T) {
	dir := t.TempDir()
	vocab := filepath.Join(dir, "vocab.txt")
	writeFile(t, vocab, "<SOS>\n<EOS>\n<UNK>\nthe\ncat\nder\nkatze\n")
	writeFile(t, CorpusPath(dir, "train", "en", "bpe"), "the cat\ncat\n")
	writeFile(t, CorpusPath(dir, "train", "de", "bpe"), "der katze\nkatze")
	if err := VectorizeFiles(dir, vocab, []string{"en", "de"}, []string{"train"}, "bpe"); err != nil {
		t.Fatal(err)
	}

	sets, err := LoadDatasets(dir, []string{"train"}, "en", "de", false)
	if err != nil {
		t.Fatal(err)
	}
	first := sets[0][0]
	if !slices.Equal(first.Source, []int{0, 3, 4, 1}) || !slices.Equal(first.Target, []int{0, 5, 6, 1}) {
		t.Fatalf("unexpected pair %+v", first)
	}

	flipped, err := LoadDatasets(dir, []string{"train"}, "en", "de", true)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(flipped[0][1].Source, sets[0][1].Target) {
		t.Fatal("flip must swap source and target")
	}

	writeFile(t, CorpusPath(dir, "train", "de", "bpe"), "der katze\n")
	if err := VectorizeFiles(dir, vocab, []string{"de"}, []string{"train"}, "bpe"); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDatasets(dir, []string{"train"}, "en", "de", false); err == nil {
		t.Fatal("mismatched line counts must be an error")
	}
	if _, err := LoadDatasets(dir, []string{"dev"}, "en", "de", false); err == nil {
		t.Fatal("missing subset must be an error")
	}
}

func TestSubwordMarkers(t *testing.T) {
	toks := []string{"trans", "lation", "works", "!"}
	offsets := [][]int{{0, 5}, {5, 11}, {12, 17}, {17, 18}}
	got := markContinuations(toks, offsets)
	if !slices.Equal(got, []string{"trans@@", "lation", "works@@", "!"}) {
		t.Fatalf("got %v", got)
	}
	if merged := MergeSubwords(strings.Join(got, " ")); merged != "translation works!" {
		t.Fatalf("got %q", merged)
	}
}
