package main

import (
	"strings"

	"github.com/pkg/errors"
)

// Architecture selects one of the four Siamese model variants. The choice is
// made once at startup from the configuration and never re-dispatched on a
// string afterwards.
type Architecture int

const (
	// CharacterBERT encodes both towers at character level and concatenates
	// the pooled embeddings before projection.
	CharacterBERT Architecture = iota
	// BERT encodes both towers with the sub-word vocabulary and concatenates
	// the pooled embeddings before projection.
	BERT
	// ScaledCharacterBERTConcat concatenates the token states of both towers
	// along the sequence axis and pools them with an extra transformer block.
	ScaledCharacterBERTConcat
	// ScaledCharacterBERTAdd adds the pooled embeddings of both towers.
	ScaledCharacterBERTAdd
)

// EncoderKind picks the tokenizer backend an architecture consumes.
type EncoderKind int

const (
	CharacterEncoder EncoderKind = iota
	SubwordEncoder
)

func (k EncoderKind) String() string {
	if k == SubwordEncoder {
		return "subword"
	}
	return "character"
}

// Combination describes how the two tower outputs are merged.
type Combination int

const (
	ConcatProject Combination = iota
	AddProject
	TransformerPool
)

// ArchitectureSpec carries the per-variant parameters.
type ArchitectureSpec struct {
	Name        string
	Encoder     EncoderKind
	Combination Combination

	// MaxSeqLen is the sequence length cap applied per tower. Zero means
	// unbounded (batch-relative padding).
	MaxSeqLen int

	// EmbeddingWidth is the encoder output width. Every variant uses the
	// configured EmbedDim; pretrained weights are checked against it on
	// restore.
	EmbeddingWidth int
}

var architectureNames = map[Architecture]string{
	CharacterBERT:             "characterbert",
	BERT:                      "bert",
	ScaledCharacterBERTConcat: "scaled characterbert concat",
	ScaledCharacterBERTAdd:    "scaled characterbert add",
}

// ParseArchitecture resolves a selector such as "characterbert" or
// "scaled characterbert add". Matching is case-insensitive and tolerant of
// repeated whitespace.
func ParseArchitecture(s string) (Architecture, error) {
	key := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	for a, name := range architectureNames {
		if name == key {
			return a, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownArchitecture, "%q", s)
}

func (a Architecture) String() string {
	if name, ok := architectureNames[a]; ok {
		return name
	}
	return "unknown"
}

// MarshalYAML writes the selector string.
func (a Architecture) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

// UnmarshalYAML accepts the selector string.
func (a *Architecture) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseArchitecture(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Spec returns the variant parameters for the given model settings.
// maxLen is the configured base length (MAX_LEN): sub-word tokens for BERT,
// words per title for the scaled concat variant.
func (a Architecture) Spec(m ModelConfig) ArchitectureSpec {
	spec := ArchitectureSpec{
		Name:           a.String(),
		EmbeddingWidth: m.EmbedDim,
	}
	switch a {
	case BERT:
		spec.Encoder = SubwordEncoder
		spec.Combination = ConcatProject
		spec.MaxSeqLen = m.MaxLen
	case ScaledCharacterBERTConcat:
		spec.Encoder = CharacterEncoder
		spec.Combination = TransformerPool
		// Two titles plus the [CLS] and two [SEP] markers.
		spec.MaxSeqLen = m.MaxLen*2 + 3
	case ScaledCharacterBERTAdd:
		spec.Encoder = CharacterEncoder
		spec.Combination = AddProject
	default:
		spec.Encoder = CharacterEncoder
		spec.Combination = ConcatProject
	}
	return spec
}
