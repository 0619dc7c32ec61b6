package trainer

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

const LogName = "training_log.csv"

// MetricsLog is the per-evaluation CSV record kept next to the checkpoints.
type MetricsLog struct {
	f *os.File
	w *csv.Writer
}

// OpenMetricsLog creates or truncates path and writes the header.
func OpenMetricsLog(path string) (*MetricsLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "creating metrics log")
	}
	l := &MetricsLog{f: f, w: csv.NewWriter(f)}
	if err := l.write([]string{"updates", "train_loss", "dev_loss", "lr"}); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *MetricsLog) Record(updates int, train, dev, lr float64) error {
	return l.write([]string{
		strconv.Itoa(updates),
		strconv.FormatFloat(train, 'g', -1, 64),
		strconv.FormatFloat(dev, 'g', -1, 64),
		strconv.FormatFloat(lr, 'g', -1, 64),
	})
}

// write flushes each row so the log survives an aborted run.
func (l *MetricsLog) write(row []string) error {
	if err := l.w.Write(row); err != nil {
		return errors.Wrap(err, "writing metrics log")
	}
	l.w.Flush()
	return errors.Wrap(l.w.Error(), "writing metrics log")
}

func (l *MetricsLog) Close() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.f.Close()
		return errors.Wrap(err, "writing metrics log")
	}
	return l.f.Close()
}
