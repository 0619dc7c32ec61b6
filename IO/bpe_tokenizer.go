package IO

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/bpe"
	"github.com/sugarme/tokenizer/pretokenizer"

	"github.com/manningwu07/NMT/params"
)

// Segmenter rewrites raw text into space-separated subwords, marking every
// subword that continues into the next one with a trailing "@@".
type Segmenter struct {
	tok *tk.Tokenizer
}

// TrainOrLoadBPE loads vocab.json + merges.txt from dir if both exist,
// otherwise trains a BPE model on corpora and saves it there.
func TrainOrLoadBPE(dir string, corpora []string, vocabSize int) (*Segmenter, error) {
	vocabFile := filepath.Join(dir, "vocab.json")
	mergesFile := filepath.Join(dir, "merges.txt")
	if fileExists(vocabFile) && fileExists(mergesFile) {
		model, err := bpe.NewBpeFromFiles(vocabFile, mergesFile)
		if err != nil {
			return nil, errors.Wrapf(err, "can't load bpe model from %q", dir)
		}
		return newSegmenter(model), nil
	}

	model, err := bpe.DefaultBPE()
	if err != nil {
		return nil, errors.Wrap(err, "can't create bpe model")
	}
	unk := params.UNK
	model.UnkToken = &unk
	s := newSegmenter(model)

	trainer := bpe.NewBpeTrainer(0, vocabSize)
	if err := s.tok.Train(trainer, corpora); err != nil {
		return nil, errors.Wrap(err, "can't train bpe model")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := s.tok.GetModel().Save(dir); err != nil {
		return nil, errors.Wrapf(err, "can't save bpe model to %q", dir)
	}
	return s, nil
}

func newSegmenter(model *bpe.BPE) *Segmenter {
	t := tk.NewTokenizer(model)
	// Whitespace + punctuation split, no normalization: case matters for translation.
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())
	return &Segmenter{tok: t}
}

// Segment encodes one line.
func (s *Segmenter) Segment(line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	enc, err := s.tok.EncodeSingle(line)
	if err != nil {
		return "", errors.Wrapf(err, "can't segment %q", line)
	}
	return strings.Join(markContinuations(enc.Tokens, enc.Offsets), " "), nil
}

// SegmentFile writes the segmented form of every line of in to out.
func (s *Segmenter) SegmentFile(in, out string) error {
	src, err := os.Open(in)
	if err != nil {
		return errors.Wrapf(err, "can't open corpus %q", in)
	}
	defer src.Close()
	dst, err := os.Create(out)
	if err != nil {
		return errors.Wrapf(err, "can't create %q", out)
	}
	defer dst.Close()
	w := bufio.NewWriter(dst)

	var segErr error
	err = eachLine(src, func(line string) {
		if segErr != nil {
			return
		}
		var seg string
		if seg, segErr = s.Segment(line); segErr == nil {
			_, segErr = w.WriteString(seg + "\n")
		}
	})
	if err == nil {
		err = segErr
	}
	if err != nil {
		return errors.Wrapf(err, "can't segment %q", in)
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "can't write %q", out)
	}
	return dst.Close()
}

// markContinuations appends "@@" to every token whose span ends exactly where
// the next token starts, so MergeSubwords restores the original spacing.
func markContinuations(tokens []string, offsets [][]int) []string {
	out := make([]string, len(tokens))
	copy(out, tokens)
	if len(offsets) != len(tokens) {
		return out
	}
	for i := 0; i+1 < len(out); i++ {
		if len(offsets[i]) == 2 && len(offsets[i+1]) == 2 && offsets[i][1] == offsets[i+1][0] {
			out[i] += "@@"
		}
	}
	return out
}
