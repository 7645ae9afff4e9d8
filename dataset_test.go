package main

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTitlePairs(t *testing.T) {
	in := `title_one,title_two,label,index
intel core i7,intel i7 core,1,0
dell xps 13,hp envy 13,0.0,1
,,,2
apple macbook,apple macbook air,1.0,3
`
	pairs, err := ReadTitlePairs(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	assert.Equal(t, TitlePair{TitleOne: "intel core i7", TitleTwo: "intel i7 core", Label: 1}, pairs[0])
	assert.Equal(t, Label(0), pairs[1].Label)
	assert.Equal(t, "apple macbook air", pairs[2].TitleTwo)
}

func TestReadTitlePairsIgnoresUnnamedIndex(t *testing.T) {
	in := `Unnamed: 0,title_one,title_two,label
0,lenovo thinkpad x1,thinkpad x1 carbon,1
1,,,
`
	pairs, err := ReadTitlePairs(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "lenovo thinkpad x1", pairs[0].TitleOne)
}

func TestReadTitlePairsRejectsBadLabels(t *testing.T) {
	for _, in := range []string{
		"title_one,title_two,label\na,b,2\n",
		"title_one,title_two,label\na,b,yes\n",
		"title_one,title_two,label\na,b,\n",
	} {
		_, err := ReadTitlePairs(strings.NewReader(in))
		require.Error(t, err, in)
		assert.Equal(t, ErrInvalidLabel, errors.Cause(err), in)
	}
}

func TestLoadDatasets(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := DefaultConfig()
	cfg.Train.TrainSize = 3
	cfg.Data.TestSets = []TestSet{
		{Name: "first", File: "test/a.csv"},
		{Name: "second", File: "test/b.csv"},
	}

	train := "title_one,title_two,label\n" +
		"The Intel Core i7,intel i7 core,1\n" +
		"a,b,0\nc,d,1\ne,f,0\ng,h,1\n"
	require.NoError(t, afero.WriteFile(fs, "data/train/total_data.csv", []byte(train), 0644))
	test := ",title_one,title_two,label\n0,x,y,1\n"
	require.NoError(t, afero.WriteFile(fs, "data/test/a.csv", []byte(test), 0644))
	require.NoError(t, afero.WriteFile(fs, "data/test/b.csv", []byte(test), 0644))

	trainPairs, evals, err := LoadDatasets(fs, cfg)
	require.NoError(t, err)
	require.Len(t, trainPairs, 3)
	assert.Equal(t, "intel core i7", trainPairs[0].TitleOne, "titles are normalized")

	require.Len(t, evals, 3)
	assert.Equal(t, ValidationSetName, evals[0].Name)
	assert.Len(t, evals[0].Pairs, 2)
	assert.Equal(t, "first", evals[1].Name)
	assert.Equal(t, "second", evals[2].Name)
	assert.Len(t, evals[2].Pairs, 1)
}

func TestLoadDatasetsMissingFile(t *testing.T) {
	_, _, err := LoadDatasets(afero.NewMemMapFs(), DefaultConfig())
	require.Error(t, err)
}

func TestSplitTrainValidation(t *testing.T) {
	data := numberedPairs(10)
	train, val := SplitTrainValidation(data, 7)
	assert.Len(t, train, 7)
	assert.Len(t, val, 3)

	train, val = SplitTrainValidation(data, 50)
	assert.Len(t, train, 10)
	assert.Empty(t, val)
}
