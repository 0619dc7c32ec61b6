package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/manningwu07/NMT/IO"
	"github.com/manningwu07/NMT/device"
	"github.com/manningwu07/NMT/params"
	"github.com/manningwu07/NMT/trainer"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// splitList reads comma separated flag values, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func corpusFiles(dir string, subsets, langs []string, ext string) []string {
	var files []string
	for _, lang := range langs {
		for _, subset := range subsets {
			files = append(files, IO.CorpusPath(dir, subset, lang, ext))
		}
	}
	return files
}

func vocabCmd(args []string) error {
	fs := newFlagSet("vocab")
	dir := fs.String("data", ".", "directory holding the corpora")
	langs := fs.String("langs", "en,de", "languages sharing the vocabulary")
	subsets := fs.String("subsets", "train", "subsets counted")
	ext := fs.String("ext", "bpe", "corpus file extension")
	out := fs.String("out", "", "vocabulary file (default {data}/vocab.txt)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		*out = filepath.Join(*dir, "vocab.txt")
	}

	counts, err := IO.BuildVocab(corpusFiles(*dir, splitList(*subsets), splitList(*langs), *ext))
	if err != nil {
		return err
	}
	if err := IO.WriteVocab(counts, *out); err != nil {
		return err
	}
	fmt.Printf("✅ Wrote %s (%d observed tokens)\n", *out, counts.Len())
	return nil
}

func segmentCmd(args []string) error {
	fs := newFlagSet("segment")
	dir := fs.String("data", ".", "directory holding {subset}.{lang}.txt")
	langs := fs.String("langs", "en,de", "languages to segment")
	subsets := fs.String("subsets", strings.Join(IO.Subsets, ","), "subsets to segment")
	modelDir := fs.String("model", "", "BPE model directory (default {data}/bpe)")
	size := fs.Int("bpe_size", 32000, "BPE vocabulary size when training")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelDir == "" {
		*modelDir = filepath.Join(*dir, "bpe")
	}

	seg, err := IO.TrainOrLoadBPE(*modelDir, corpusFiles(*dir, []string{"train"}, splitList(*langs), "txt"), *size)
	if err != nil {
		return err
	}
	for _, lang := range splitList(*langs) {
		for _, subset := range splitList(*subsets) {
			in := IO.CorpusPath(*dir, subset, lang, "txt")
			out := IO.CorpusPath(*dir, subset, lang, "bpe")
			if err := seg.SegmentFile(in, out); err != nil {
				return err
			}
			fmt.Printf("✅ Segmented %s\n", out)
		}
	}
	return nil
}

func vectorizeCmd(args []string) error {
	fs := newFlagSet("vectorize")
	dir := fs.String("data", ".", "directory holding the corpora")
	vocab := fs.String("vocab", "", "vocabulary file (default {data}/vocab.txt)")
	langs := fs.String("langs", "en,de", "languages to vectorize")
	subsets := fs.String("subsets", strings.Join(IO.Subsets, ","), "subsets to vectorize")
	ext := fs.String("ext", "bpe", "corpus file extension")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *vocab == "" {
		*vocab = filepath.Join(*dir, "vocab.txt")
	}
	return IO.VectorizeFiles(*dir, *vocab, splitList(*langs), splitList(*subsets), *ext)
}

func decodeCmd(args []string) error {
	fs := newFlagSet("decode")
	vocab := fs.String("vocab", "vocab.txt", "vocabulary file")
	in := fs.String("in", "", "vectorized file to print")
	merge := fs.Bool("merge", false, "join BPE subwords back into words")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("decode: -in is required")
	}

	v, err := IO.ReadVocab(*vocab)
	if err != nil {
		return err
	}
	seqs, err := IO.ReadVectorized(*in)
	if err != nil {
		return err
	}
	for i, ids := range seqs {
		line, err := IO.Devectorize(ids, v, true)
		if err != nil {
			return errors.Wrapf(err, "sequence %d of %q", i, *in)
		}
		if *merge {
			line = IO.MergeSubwords(line)
		}
		fmt.Println(line)
	}
	return nil
}

// trainFlags binds the run configuration flags to cfg.
func trainFlags(cfg *params.TrainingConfig) (*flag.FlagSet, *string) {
	fs := newFlagSet("train")
	config := fs.String("config", "", "YAML file overlaid on the defaults; flags override it")
	fs.Func("model", fmt.Sprintf("model variant, one of %v", params.Variants()), func(s string) error {
		cfg.Model = params.ModelVariant(s) // checked by Validate
		return nil
	})
	fs.IntVar(&cfg.VocabSize, "vocab_size", cfg.VocabSize, "size of the vocabulary")
	fs.IntVar(&cfg.NumUpdates, "num_updates", cfg.NumUpdates, "total number of parameter updates")
	fs.IntVar(&cfg.BatchSize, "batch_size", cfg.BatchSize, "token budget of one forward batch")
	fs.IntVar(&cfg.UpdateEvery, "update_every", cfg.UpdateEvery, "micro-batches per parameter update")
	fs.IntVar(&cfg.EvalEvery, "eval_every", cfg.EvalEvery, "updates between evaluations")
	fs.IntVar(&cfg.SaveEvery, "save_every", cfg.SaveEvery, "updates between checkpoints")
	fs.Func("num_layers", "encoder,decoder layer counts", func(s string) error {
		var layers []int
		for _, part := range splitList(s) {
			n, err := strconv.Atoi(part)
			if err != nil {
				return err
			}
			layers = append(layers, n)
		}
		cfg.NumLayers = layers
		return nil
	})
	fs.IntVar(&cfg.DModel, "dim", cfg.DModel, "model width")
	fs.IntVar(&cfg.NumHeads, "num_heads", cfg.NumHeads, "attention heads")
	fs.IntVar(&cfg.WorldSize, "world_size", cfg.WorldSize, "number of worker ranks")
	fs.StringVar(&cfg.DataPath, "data_path", cfg.DataPath, "where to load the vectorized data from")
	fs.StringVar(&cfg.StorePath, "store_path", cfg.StorePath, "if/where to store checkpoints and the training log")
	fs.StringVar(&cfg.SourceLang, "source_lang", cfg.SourceLang, "source language code")
	fs.StringVar(&cfg.TargetLang, "target_lang", cfg.TargetLang, "target language code")
	fs.BoolVar(&cfg.Flip, "flip", cfg.Flip, "swap source and target")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "the id of the current repetition")
	fs.Float64Var(&cfg.GradClip, "grad_clip", cfg.GradClip, "gradient norm limit, 0 disables")
	return fs, config
}

// parseTrainConfig applies defaults, then the YAML file, then the flags.
func parseTrainConfig(args []string) (params.TrainingConfig, error) {
	probe := params.Config
	fs, config := trainFlags(&probe)
	if err := fs.Parse(args); err != nil {
		return probe, err
	}
	cfg := params.Config
	if *config != "" {
		var err error
		if cfg, err = params.LoadConfig(*config, cfg); err != nil {
			return cfg, err
		}
	}
	fs, _ = trainFlags(&cfg)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func trainCmd(args []string) error {
	cfg, err := parseTrainConfig(args)
	if err != nil {
		return err
	}
	fmt.Printf("%+v\n", cfg)
	fmt.Printf("Effective batch size: %d\n", cfg.EffectiveBatchSize())
	for rank := 0; rank < cfg.WorldSize; rank++ {
		fmt.Println(device.Bind(rank).Describe())
	}

	sets, err := IO.LoadDatasets(cfg.DataPath, []string{"train", "dev"}, cfg.SourceLang, cfg.TargetLang, cfg.Flip)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return trainer.Spawn(ctx, cfg, sets[0], sets[1], os.Stdout)
}
