package params

// Vocabulary is the token <-> id bijection. IDToToken is derived once at load
// time and treated as read-only afterwards.
type Vocabulary struct {
	TokenToID map[string]int
	IDToToken []string
}

// Reserved markers, always written first and always ids 0, 1, 2.
const (
	SOS = "<SOS>"
	EOS = "<EOS>"
	UNK = "<UNK>"

	SOSID = 0
	EOSID = 1
	UNKID = 2
)

// Special tokens kept at the start of the vocab
var Special = []string{SOS, EOS, UNK}

// PadID marks padding positions in collated batches; never a valid token id.
const PadID = -1

type TrainingConfig struct {
	// Model
	Model     ModelVariant `yaml:"model"`      // closed set, see ModelVariant
	VocabSize int          `yaml:"vocab_size"` // |V| the model is built for
	NumLayers []int        `yaml:"num_layers"` // (encoder, decoder)
	DModel    int          `yaml:"dim"`        // model width
	NumHeads  int          `yaml:"num_heads"`  // attention heads

	// Run
	WorldSize   int   `yaml:"world_size"`   // number of worker ranks
	NumUpdates  int   `yaml:"num_updates"`  // total optimizer updates
	BatchSize   int   `yaml:"batch_size"`   // token budget per micro-batch
	UpdateEvery int   `yaml:"update_every"` // micro-batches per optimizer update
	EvalEvery   int   `yaml:"eval_every"`   // optimizer updates between evaluations
	SaveEvery   int   `yaml:"save_every"`   // optimizer updates between checkpoints (multiple of EvalEvery)
	Seed        int64 `yaml:"seed"`

	// Data
	DataPath   string `yaml:"data_path"`  // where the .vec files live
	StorePath  string `yaml:"store_path"` // checkpoints + training_log.csv ("" disables)
	SourceLang string `yaml:"source_lang"`
	TargetLang string `yaml:"target_lang"`
	Flip       bool   `yaml:"flip"` // swap source and target after loading

	// Schedule
	WarmupSteps int     `yaml:"warmup_steps"`
	InitLR      float64 `yaml:"init_lr"`
	MaxLR       float64 `yaml:"max_lr"`
	MinLR       float64 `yaml:"min_lr"`

	// Optimizer
	AdamBeta1   float64 `yaml:"adam_beta1"`
	AdamBeta2   float64 `yaml:"adam_beta2"`
	AdamEps     float64 `yaml:"adam_eps"`
	WeightDecay float64 `yaml:"weight_decay"` // AdamW-style; 0 disables
	GradClip    float64 `yaml:"grad_clip"`    // <=0 disables
}

var Config = TrainingConfig{
	Model:     Bigram,
	VocabSize: 32000,
	NumLayers: []int{6, 6},
	DModel:    512,
	NumHeads:  8,

	WorldSize:   1,
	NumUpdates:  15000,
	BatchSize:   8000, // tokens, source + target
	UpdateEvery: 40,
	EvalEvery:   50,
	SaveEvery:   500,
	Seed:        42,

	SourceLang: "en",
	TargetLang: "de",

	WarmupSteps: 4000,
	InitLR:      1e-7,
	MaxLR:       5e-4,
	MinLR:       1e-9,

	AdamBeta1:   0.9,
	AdamBeta2:   0.999,
	AdamEps:     1e-8,
	WeightDecay: 0.01,
}
