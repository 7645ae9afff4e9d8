package main

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestParseArchitecture(t *testing.T) {
	tests := []struct {
		in   string
		want Architecture
	}{
		{"characterbert", CharacterBERT},
		{"CharacterBERT", CharacterBERT},
		{"bert", BERT},
		{"scaled characterbert concat", ScaledCharacterBERTConcat},
		{"  Scaled   CharacterBERT   Add ", ScaledCharacterBERTAdd},
	}
	for _, tt := range tests {
		got, err := ParseArchitecture(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseArchitecture("roberta")
	assert.Equal(t, ErrUnknownArchitecture, errors.Cause(err))
	assert.Equal(t, "unknown", Architecture(9).String())
}

func TestArchitectureSpec(t *testing.T) {
	m := DefaultConfig().Model
	m.MaxLen = 10

	tests := []struct {
		arch        Architecture
		encoder     EncoderKind
		combination Combination
		maxSeqLen   int
	}{
		{CharacterBERT, CharacterEncoder, ConcatProject, 0},
		{BERT, SubwordEncoder, ConcatProject, 10},
		{ScaledCharacterBERTConcat, CharacterEncoder, TransformerPool, 23},
		{ScaledCharacterBERTAdd, CharacterEncoder, AddProject, 0},
	}
	for _, tt := range tests {
		spec := tt.arch.Spec(m)
		assert.Equal(t, tt.encoder, spec.Encoder, tt.arch.String())
		assert.Equal(t, tt.combination, spec.Combination, tt.arch.String())
		assert.Equal(t, tt.maxSeqLen, spec.MaxSeqLen, tt.arch.String())
		assert.Equal(t, m.EmbedDim, spec.EmbeddingWidth, tt.arch.String())
	}
}

func TestArchitectureYAML(t *testing.T) {
	for _, arch := range allArchitectures {
		out, err := yaml.Marshal(struct {
			A Architecture `yaml:"a"`
		}{arch})
		require.NoError(t, err)

		var back struct {
			A Architecture `yaml:"a"`
		}
		require.NoError(t, yaml.Unmarshal(out, &back))
		assert.Equal(t, arch, back.A)
	}
}
