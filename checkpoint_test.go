package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckpointPath(t *testing.T) {
	assert.Equal(t, filepath.Join("models", "run1", "bert_epoch3.ckpt"), CheckpointPath("models", "run1", "bert", 3))
	assert.Equal(t, filepath.Join("models", "run1", "bert_vocab.txt"), checkpointVocabPath(CheckpointPath("models", "run1", "bert", 3)))
}

func TestCheckpointRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := tinyConfig(ScaledCharacterBERTConcat)
	model := tinyModel(t, cfg)
	path := CheckpointPath("models", "run", "tiny", 1)

	n, err := SaveCheckpoint(fs, path, model, cfg.Model, 1)
	require.NoError(t, err)
	assert.Greater(t, n, int64(0))

	ckpt, err := LoadCheckpoint(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "scaled characterbert concat", ckpt.Header.Architecture)
	assert.Equal(t, 1, ckpt.Header.Epoch)
	assert.Equal(t, cfg.Model, ckpt.Header.Model)
	assert.Len(t, ckpt.Params, len(model.Params().All()))

	other := tinyConfig(ScaledCharacterBERTConcat)
	other.Model.Seed = 99
	restored := tinyModel(t, other)
	require.NotEqual(t, model.Params().Get("head.out.w").Data(), restored.Params().Get("head.out.w").Data())

	require.NoError(t, ckpt.Restore(restored))
	for _, p := range model.Params().All() {
		assert.Equal(t, p.Data(), restored.Params().Get(p.Name()).Data(), p.Name())
	}
}

func TestCheckpointNeverOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := tinyConfig(CharacterBERT)
	model := tinyModel(t, cfg)
	path := CheckpointPath("models", "run", "tiny", 1)

	_, err := SaveCheckpoint(fs, path, model, cfg.Model, 1)
	require.NoError(t, err)
	before, err := afero.ReadFile(fs, path)
	require.NoError(t, err)

	_, err = SaveCheckpoint(fs, path, model, cfg.Model, 1)
	assert.Equal(t, ErrCheckpointExists, errors.Cause(err))

	after, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCheckpointRestoreMismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := tinyConfig(CharacterBERT)
	path := CheckpointPath("models", "run", "tiny", 1)
	_, err := SaveCheckpoint(fs, path, tinyModel(t, cfg), cfg.Model, 1)
	require.NoError(t, err)
	ckpt, err := LoadCheckpoint(fs, path)
	require.NoError(t, err)

	assert.Error(t, ckpt.Restore(tinyModel(t, tinyConfig(ScaledCharacterBERTAdd))), "different architecture")

	wide := tinyConfig(ScaledCharacterBERTAdd)
	wide.Model.EmbedDim = 16
	err = ckpt.RestoreEncoder(tinyModel(t, wide))
	assert.Equal(t, ErrWidthMismatch, errors.Cause(err))

	// Same width: the encoder transfers across variants.
	add := tinyModel(t, tinyConfig(ScaledCharacterBERTAdd))
	require.NoError(t, ckpt.RestoreEncoder(add))
	assert.Equal(t, ckpt.Params["encoder.embed"].Data(), add.Params().Get("encoder.embed").Data())
}

func TestLoadCheckpointCorrupt(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "bad.ckpt", []byte("not a checkpoint"), 0644))
	_, err := LoadCheckpoint(fs, "bad.ckpt")
	assert.Error(t, err)

	_, err = LoadCheckpoint(fs, "missing.ckpt")
	assert.Error(t, err)
}

func TestBuildModelPretrained(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := tinyConfig(CharacterBERT)
	src := tinyModel(t, cfg)
	path := CheckpointPath("models", "pre", "tiny", 1)
	_, err := SaveCheckpoint(fs, path, src, cfg.Model, 1)
	require.NoError(t, err)

	target := tinyConfig(ScaledCharacterBERTAdd)
	target.Model.Seed = 3
	target.Model.Pretrained = path
	enc, err := NewCharacterIndexer(target.Model.CharsPerWord, 0)
	require.NoError(t, err)
	model, err := BuildModel(fs, target, enc, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, src.Params().Get("encoder.embed").Data(), model.Params().Get("encoder.embed").Data())
	assert.NotEqual(t, src.Params().Get("head.out.w").Data(), model.Params().Get("head.out.w").Data())
}

// brokenWriteFs hands out files whose writes always fail.
type brokenWriteFs struct{ afero.Fs }

func (fs brokenWriteFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := fs.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return brokenWriteFile{f}, nil
}

type brokenWriteFile struct{ afero.File }

func (brokenWriteFile) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSaveCheckpointRemovesPartialFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := tinyConfig(CharacterBERT)
	model := tinyModel(t, cfg)
	path := CheckpointPath("models", "run", "tiny", 1)

	_, err := SaveCheckpoint(brokenWriteFs{fs}, path, model, cfg.Model, 1)
	require.Error(t, err)
	ok, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.False(t, ok, "failed save leaves nothing behind")

	_, err = SaveCheckpoint(fs, path, model, cfg.Model, 1)
	require.NoError(t, err)
	_, err = LoadCheckpoint(fs, path)
	assert.NoError(t, err)
}
