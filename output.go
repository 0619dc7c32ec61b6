package main

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/manningwu07/NMT/trainer"
)

// logRecord is one row of training_log.csv.
type logRecord struct {
	updates        int
	train, dev, lr float64
}

// readTrainingLog reads the metrics log written during training.
func readTrainingLog(path string) ([]logRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening training log")
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	var out []logRecord
	for line := 1; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading %q", path)
		}
		if line == 1 {
			continue // header
		}
		var rec logRecord
		if rec.updates, err = strconv.Atoi(record[0]); err != nil {
			return nil, errors.Wrapf(err, "%q line %d", path, line)
		}
		vals := make([]float64, 3)
		for i := range vals {
			if vals[i], err = strconv.ParseFloat(record[i+1], 64); err != nil {
				return nil, errors.Wrapf(err, "%q line %d", path, line)
			}
		}
		rec.train, rec.dev, rec.lr = vals[0], vals[1], vals[2]
		out = append(out, rec)
	}
	return out, nil
}

// asciiPlot draws a crude vertical bar chart of values, scaled so the
// largest finite value fills the chart.
func asciiPlot(w io.Writer, values []float64) {
	const height = 10 // number of text rows
	n := len(values)
	if n == 0 {
		fmt.Fprintln(w, "no data to plot")
		return
	}
	finite := slices.DeleteFunc(slices.Clone(values), func(v float64) bool {
		return math.IsNaN(v) || math.IsInf(v, 0)
	})
	top := 1.0
	if len(finite) > 0 && floats.Max(finite) > 0 {
		top = floats.Max(finite)
	}
	for row := height; row >= 1; row-- {
		threshold := top * float64(row) / float64(height)
		var sb strings.Builder
		for _, v := range values {
			if v >= threshold {
				sb.WriteString("█")
			} else {
				sb.WriteString(" ")
			}
		}
		fmt.Fprintln(w, sb.String())
	}
	fmt.Fprintln(w, strings.Repeat("─", n))
	// evaluation indices every 5 chars
	var sb strings.Builder
	for i := range values {
		if i%5 == 0 {
			sb.WriteString(strconv.Itoa(i % 10))
		} else {
			sb.WriteString(" ")
		}
	}
	fmt.Fprintln(w, sb.String())
}

func curveCmd(args []string) error {
	fs := newFlagSet("curve")
	store := fs.String("store_path", ".", "directory holding "+trainer.LogName)
	which := fs.String("loss", "dev", "which loss to plot: train or dev")
	if err := fs.Parse(args); err != nil {
		return err
	}
	records, err := readTrainingLog(filepath.Join(*store, trainer.LogName))
	if err != nil {
		return err
	}
	values := make([]float64, len(records))
	for i, rec := range records {
		switch *which {
		case "dev":
			values[i] = rec.dev
		case "train":
			values[i] = rec.train
		default:
			return errors.Errorf("curve: unknown loss %q", *which)
		}
	}
	asciiPlot(os.Stdout, values)
	if n := len(records); n > 0 {
		last := records[n-1]
		fmt.Printf("%d evaluations, last at update %d: train %.4f, dev %.4f, lr %.3g\n", n, last.updates, last.train, last.dev, last.lr)
	}
	return nil
}
