package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

type command struct {
	name  string
	about string
	run   func(args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"vocab", "count tokens of the training corpora and write the vocabulary", vocabCmd},
		{"segment", "train or load a BPE model and write {subset}.{lang}.bpe files", segmentCmd},
		{"vectorize", "turn {subset}.{lang}.bpe files into {subset}.{lang}.vec", vectorizeCmd},
		{"decode", "print the sentences stored in a .vec file", decodeCmd},
		{"train", "train a translation model on the vectorized datasets", trainCmd},
		{"curve", "plot the losses recorded in a store's training log", curveCmd},
		{"help", "show this message", helpCmd},
	}
}

func main() {
	err := run(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage(os.Stderr)
		return errors.New("no command given")
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(args[1:])
		}
	}
	usage(os.Stderr)
	return errors.Errorf("unknown command %q", args[0])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: nmt <command> [flags]")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.about)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run nmt <command> -h for the flags of a command.")
}

func helpCmd([]string) error {
	usage(os.Stdout)
	return nil
}
