package main

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ValidationSetName labels the held-out tail of the training file.
const ValidationSetName = "Validation"

// Label is a binary match label: 1 means both titles name the same product.
type Label int

const labelMissing Label = -1

// UnmarshalCSV implements gocsv.TypeUnmarshaller. Float encodings such as
// "1.0" are accepted; anything other than 0 or 1 is rejected.
func (l *Label) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*l = labelMissing
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.Wrapf(ErrInvalidLabel, "%q", s)
	}
	switch f {
	case 0:
		*l = 0
	case 1:
		*l = 1
	default:
		return errors.Wrapf(ErrInvalidLabel, "%q", s)
	}
	return nil
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (l Label) MarshalCSV() (string, error) {
	return strconv.Itoa(int(l)), nil
}

// TitlePair is one labelled example. Extra columns (a leading index, the
// pandas "Unnamed: 0" column) are ignored.
type TitlePair struct {
	TitleOne string `csv:"title_one"`
	TitleTwo string `csv:"title_two"`
	Label    Label  `csv:"label"`
}

func (p TitlePair) empty() bool {
	return strings.TrimSpace(p.TitleOne) == "" && strings.TrimSpace(p.TitleTwo) == "" && p.Label == labelMissing
}

// Swapped returns the pair with the titles exchanged.
func (p TitlePair) Swapped() TitlePair {
	return TitlePair{TitleOne: p.TitleTwo, TitleTwo: p.TitleOne, Label: p.Label}
}

// NamedDataset is an evaluation set held fully in memory.
type NamedDataset struct {
	Name  string
	Pairs []TitlePair
}

// ReadTitlePairs decodes CSV records. Rows with every field empty are
// dropped; a row with titles but no label is an error.
func ReadTitlePairs(r io.Reader) ([]TitlePair, error) {
	var rows []TitlePair
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) && pe.Err != nil {
			return nil, errors.Wrapf(pe.Err, "line %d column %d", pe.Line, pe.Column)
		}
		return nil, errors.Wrap(err, "decoding title pairs")
	}
	pairs := rows[:0]
	for i, row := range rows {
		if row.empty() {
			continue
		}
		if row.Label == labelMissing {
			return nil, errors.Wrapf(ErrInvalidLabel, "row %d has no label", i+1)
		}
		pairs = append(pairs, row)
	}
	return pairs, nil
}

// LoadTitlePairs reads a CSV file, optionally normalizing every title.
func LoadTitlePairs(fs afero.Fs, path string, normalize bool) ([]TitlePair, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	pairs, err := ReadTitlePairs(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if normalize {
		for i := range pairs {
			pairs[i].TitleOne = Normalize(pairs[i].TitleOne)
			pairs[i].TitleTwo = Normalize(pairs[i].TitleTwo)
		}
	}
	return pairs, nil
}

// SplitTrainValidation returns the first trainSize rows for training and the
// rest for validation.
func SplitTrainValidation(pairs []TitlePair, trainSize int) (train, validation []TitlePair) {
	if trainSize > len(pairs) {
		trainSize = len(pairs)
	}
	return pairs[:trainSize], pairs[trainSize:]
}

// Labels extracts the label column as class indices.
func Labels(pairs []TitlePair) []int {
	labels := make([]int, len(pairs))
	for i, p := range pairs {
		labels[i] = int(p.Label)
	}
	return labels
}

// dataPaths lists every input file the run needs, training file first.
func dataPaths(cfg DataConfig) []string {
	paths := []string{filepath.Join(cfg.Dir, cfg.TrainFile)}
	for _, ts := range cfg.TestSets {
		paths = append(paths, filepath.Join(cfg.Dir, ts.File))
	}
	return paths
}

// LoadDatasets reads the training file and every test set. The returned
// evaluation sets are the validation split followed by the test sets in
// configuration order.
func LoadDatasets(fs afero.Fs, cfg *Config) ([]TitlePair, []NamedDataset, error) {
	all, err := LoadTitlePairs(fs, filepath.Join(cfg.Data.Dir, cfg.Data.TrainFile), cfg.Data.Normalize)
	if err != nil {
		return nil, nil, err
	}
	train, validation := SplitTrainValidation(all, cfg.Train.TrainSize)

	evals := []NamedDataset{{Name: ValidationSetName, Pairs: validation}}
	for _, ts := range cfg.Data.TestSets {
		pairs, err := LoadTitlePairs(fs, filepath.Join(cfg.Data.Dir, ts.File), cfg.Data.Normalize)
		if err != nil {
			return nil, nil, err
		}
		evals = append(evals, NamedDataset{Name: ts.Name, Pairs: pairs})
	}
	return train, evals, nil
}
