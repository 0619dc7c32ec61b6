package IO

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/manningwu07/NMT/params"
)

var (
	ErrMalformedVocab = errors.New("malformed vocabulary")
	ErrUnknownID      = errors.New("id has no token")
)

// TokenCount is one row of the vocabulary file.
type TokenCount struct {
	Token string
	Count int
}

// Counts is a frequency table that remembers first-seen order, so ties
// sort the same way on every run.
type Counts struct {
	count map[string]int
	order []string
}

func NewCounts() *Counts {
	return &Counts{count: make(map[string]int, 1<<15)}
}

func (c *Counts) Add(tok string) {
	if _, ok := c.count[tok]; !ok {
		c.order = append(c.order, tok)
	}
	c.count[tok]++
}

func (c *Counts) Count(tok string) int { return c.count[tok] }

func (c *Counts) Len() int { return len(c.order) }

// Sorted returns tokens by descending count, ties in first-seen order.
func (c *Counts) Sorted() []TokenCount {
	out := make([]TokenCount, len(c.order))
	for i, tok := range c.order {
		out[i] = TokenCount{Token: tok, Count: c.count[tok]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// CountTokens adds every whitespace-delimited token of r to c.
func CountTokens(r io.Reader, c *Counts) error {
	return eachLine(r, func(line string) {
		for _, tok := range strings.Fields(line) {
			c.Add(tok)
		}
	})
}

// BuildVocab counts tokens across all files.
func BuildVocab(files []string) (*Counts, error) {
	c := NewCounts()
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "can't open corpus %q", path)
		}
		err = CountTokens(f, c)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "can't read corpus %q", path)
		}
	}
	return c, nil
}

// WriteVocab writes the reserved markers, then "token\tcount" rows by
// descending frequency. Reserved markers seen in the corpus are not repeated.
func WriteVocab(c *Counts, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "can't create vocab %q", path)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, s := range params.Special {
		if _, err := fmt.Fprintln(w, s); err != nil {
			return errors.Wrapf(err, "can't write vocab %q", path)
		}
	}
	for _, tc := range c.Sorted() {
		if isSpecial(tc.Token) {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s\t%d\n", tc.Token, tc.Count); err != nil {
			return errors.Wrapf(err, "can't write vocab %q", path)
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "can't write vocab %q", path)
	}
	return f.Close()
}

// ReadVocab assigns ids by line number. The first occurrence of a token wins.
func ReadVocab(path string) (params.Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return params.Vocabulary{}, errors.Wrapf(err, "can't open vocab %q", path)
	}
	defer f.Close()
	v, err := readVocab(f)
	if err != nil {
		return params.Vocabulary{}, errors.Wrapf(err, "vocab %q", path)
	}
	return v, nil
}

func readVocab(r io.Reader) (params.Vocabulary, error) {
	v := params.Vocabulary{TokenToID: make(map[string]int)}
	br := bufio.NewReaderSize(r, 1<<20)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			tok, _, _ := strings.Cut(line, "\t")
			if tok == "" {
				return params.Vocabulary{}, errors.Wrapf(ErrMalformedVocab, "empty token on line %d", len(v.IDToToken)+1)
			}
			id := len(v.IDToToken)
			v.IDToToken = append(v.IDToToken, tok)
			if _, dup := v.TokenToID[tok]; !dup {
				v.TokenToID[tok] = id
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return params.Vocabulary{}, err
		}
	}
	if len(v.IDToToken) < len(params.Special) {
		return params.Vocabulary{}, errors.Wrapf(ErrMalformedVocab, "only %d lines", len(v.IDToToken))
	}
	for id, s := range params.Special {
		if v.IDToToken[id] != s {
			return params.Vocabulary{}, errors.Wrapf(ErrMalformedVocab, "line %d is %q, want %q", id+1, v.IDToToken[id], s)
		}
	}
	return v, nil
}

// VocabLookup never fails: unseen tokens map to the unknown id.
func VocabLookup(v params.Vocabulary, tok string) int {
	if id, ok := v.TokenToID[tok]; ok {
		return id
	}
	return params.UNKID
}

// VocabToken is the reverse lookup; unmapped ids are an error.
func VocabToken(v params.Vocabulary, id int) (string, error) {
	if id < 0 || id >= len(v.IDToToken) {
		return "", errors.Wrapf(ErrUnknownID, "%d (vocab has %d)", id, len(v.IDToToken))
	}
	return v.IDToToken[id], nil
}

func isSpecial(tok string) bool {
	for _, s := range params.Special {
		if tok == s {
			return true
		}
	}
	return false
}
