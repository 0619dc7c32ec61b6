package params

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ModelVariant selects one model from a closed set.
type ModelVariant string

const (
	Bigram      ModelVariant = "Bigram"
	Conditional ModelVariant = "Conditional"
)

var ErrUnknownModel = errors.New("unknown model variant")

var variants = []ModelVariant{Bigram, Conditional}

// Variants lists the accepted model selectors.
func Variants() []ModelVariant {
	return append([]ModelVariant(nil), variants...)
}

// ParseModelVariant never substitutes a default.
func ParseModelVariant(s string) (ModelVariant, error) {
	for _, v := range variants {
		if string(v) == s {
			return v, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownModel, "%q (want one of %v)", s, variants)
}

// LoadConfig overlays the YAML file at path onto base.
func LoadConfig(path string, base TrainingConfig) (TrainingConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, errors.Wrapf(err, "can't read config %q", path)
	}
	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return base, errors.Wrapf(err, "can't parse config %q", path)
	}
	return cfg, nil
}

// Validate rejects configurations that would fail later in the run.
func (c TrainingConfig) Validate() error {
	if _, err := ParseModelVariant(string(c.Model)); err != nil {
		return err
	}
	positive := []struct {
		name string
		v    int
	}{
		{"world_size", c.WorldSize},
		{"vocab_size", c.VocabSize},
		{"num_updates", c.NumUpdates},
		{"batch_size", c.BatchSize},
		{"update_every", c.UpdateEvery},
		{"eval_every", c.EvalEvery},
		{"save_every", c.SaveEvery},
		{"dim", c.DModel},
		{"num_heads", c.NumHeads},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return errors.Errorf("%s must be positive, got %d", p.name, p.v)
		}
	}
	if c.SaveEvery%c.EvalEvery != 0 {
		return errors.Errorf("save_every (%d) must be a multiple of eval_every (%d)", c.SaveEvery, c.EvalEvery)
	}
	if c.DModel%c.NumHeads != 0 {
		return errors.Errorf("dim (%d) must be divisible by num_heads (%d)", c.DModel, c.NumHeads)
	}
	if len(c.NumLayers) != 2 || c.NumLayers[0] < 0 || c.NumLayers[1] < 0 {
		return errors.Errorf("num_layers must be two non-negative counts, got %v", c.NumLayers)
	}
	if c.SourceLang == "" || c.TargetLang == "" {
		return errors.New("source_lang and target_lang must be set")
	}
	if c.WarmupSteps < 0 {
		return errors.Errorf("warmup_steps must be non-negative, got %d", c.WarmupSteps)
	}
	return nil
}

// EffectiveBatchSize is the token budget seen by one optimizer update across all ranks.
func (c TrainingConfig) EffectiveBatchSize() int {
	return c.BatchSize * c.UpdateEvery * c.WorldSize
}
