package IO

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/manningwu07/NMT/params"
)

// CorpusPath follows the {subset}.{lang}.{ext} naming convention.
func CorpusPath(dir, subset, lang, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s.%s", subset, lang, ext))
}

// Vectorize maps each whitespace-delimited token through v.
func Vectorize(line string, v params.Vocabulary, wrap bool) []int {
	toks := strings.Fields(line)
	ids := make([]int, 0, len(toks)+2)
	if wrap {
		ids = append(ids, params.SOSID)
	}
	for _, t := range toks {
		ids = append(ids, VocabLookup(v, t)) // unseen -> <UNK>
	}
	if wrap {
		ids = append(ids, params.EOSID)
	}
	return ids
}

// Devectorize maps ids back to text. With unwrap, the leading id is dropped
// and output stops before the first end marker.
func Devectorize(ids []int, v params.Vocabulary, unwrap bool) (string, error) {
	toks := make([]string, len(ids))
	for i, id := range ids {
		tok, err := VocabToken(v, id)
		if err != nil {
			return "", errors.Wrapf(err, "position %d", i)
		}
		toks[i] = tok
	}
	if unwrap {
		if len(toks) > 0 {
			toks = toks[1:]
		}
		for i, tok := range toks {
			if tok == params.EOS {
				toks = toks[:i]
				break
			}
		}
	}
	return strings.Join(toks, " "), nil
}

// MergeSubwords undoes "@@ " continuation markers of segmented text.
func MergeSubwords(line string) string {
	return strings.ReplaceAll(line, "@@ ", "")
}

// VectorizeFile returns one sequence per input line, in order.
func VectorizeFile(path string, v params.Vocabulary, wrap bool) ([][]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open corpus %q", path)
	}
	defer f.Close()
	var out [][]int
	err = eachLine(f, func(line string) {
		out = append(out, Vectorize(line, v, wrap))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "can't read corpus %q", path)
	}
	return out, nil
}

// VectorizeFiles vectorizes {subset}.{lang}.{ext} under dir for every
// language and subset and writes {subset}.{lang}.vec next to it.
func VectorizeFiles(dir, vocabPath string, langs, subsets []string, ext string) error {
	v, err := ReadVocab(vocabPath)
	if err != nil {
		return err
	}
	for _, lang := range langs {
		for _, subset := range subsets {
			seqs, err := VectorizeFile(CorpusPath(dir, subset, lang, ext), v, true)
			if err != nil {
				return err
			}
			out := CorpusPath(dir, subset, lang, VecExt)
			if err := WriteVectorized(out, seqs); err != nil {
				return err
			}
			fmt.Printf("✅ %s: %d sequences\n", out, len(seqs))
		}
	}
	return nil
}

// eachLine calls fn for every line of r, newline included. A trailing line
// without newline still counts.
func eachLine(r io.Reader, fn func(string)) error {
	br := bufio.NewReaderSize(r, 1<<20)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			fn(line)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
