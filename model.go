package main

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// VocabPath returns where the sub-word vocabulary of a run is stored.
func VocabPath(root, folder, model string) string {
	return filepath.Join(root, folder, fmt.Sprintf("%s_vocab.txt", model))
}

// NewPairEncoder builds the tokenizer backend for cfg.Architecture. The
// sub-word vocabulary is loaded from vocabPath when it exists; otherwise it
// is learned from the corpus titles and saved there.
func NewPairEncoder(fs afero.Fs, cfg *Config, vocabPath string, corpus []TitlePair, logger *zap.Logger) (PairEncoder, error) {
	spec := cfg.Architecture.Spec(cfg.Model)
	if spec.Encoder == CharacterEncoder {
		ci, err := NewCharacterIndexer(cfg.Model.CharsPerWord, spec.MaxSeqLen)
		if err != nil {
			return nil, err
		}
		return ci, nil
	}

	tok, err := NewSubwordTokenizer(spec.MaxSeqLen)
	if err != nil {
		return nil, err
	}
	if ok, _ := afero.Exists(fs, vocabPath); ok {
		if err := tok.Load(fs, vocabPath); err != nil {
			return nil, err
		}
		logger.Info("loaded vocabulary", zap.String("path", vocabPath), zap.Int("size", tok.VocabSize()))
		return tok, nil
	}

	titles := make([]string, 0, 2*len(corpus))
	for _, p := range corpus {
		titles = append(titles, p.TitleOne, p.TitleTwo)
	}
	if err := tok.Train(titles, cfg.Model.VocabSize); err != nil {
		return nil, errors.Wrap(err, "training vocabulary")
	}
	if err := fs.MkdirAll(filepath.Dir(vocabPath), 0755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", filepath.Dir(vocabPath))
	}
	if err := tok.Save(fs, vocabPath); err != nil {
		return nil, err
	}
	logger.Info("trained vocabulary", zap.String("path", vocabPath), zap.Int("size", tok.VocabSize()))
	return tok, nil
}

// BuildModel creates the configured model and, when cfg.Model.Pretrained is
// set, seeds its encoder from that checkpoint.
func BuildModel(fs afero.Fs, cfg *Config, enc PairEncoder, logger *zap.Logger) (*SiameseModel, error) {
	model, err := NewSiameseModel(cfg.Architecture, cfg.Model, enc)
	if err != nil {
		return nil, err
	}
	if cfg.Model.Pretrained != "" {
		ckpt, err := LoadCheckpoint(fs, cfg.Model.Pretrained)
		if err != nil {
			return nil, errors.Wrap(err, "loading pretrained encoder")
		}
		if err := ckpt.RestoreEncoder(model); err != nil {
			return nil, err
		}
		logger.Info("loaded pretrained encoder", zap.String("path", cfg.Model.Pretrained))
	}
	logger.Info("model ready",
		zap.Stringer("architecture", model.Architecture()),
		zap.Stringer("encoder", enc.Kind()),
		zap.Int("parameters", model.Params().Count()))
	return model, nil
}
