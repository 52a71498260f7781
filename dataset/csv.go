// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
)

// CSVOptions describes a rating file with columns user, item, rating and an optional
// timestamp.
type CSVOptions struct {
	Separator rune
	Header    bool
	Progress  bool
}

// LoadCSV reads all ratings from a file.
func LoadCSV(path string, opts CSVOptions) ([]Rating, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	var r io.Reader = file
	if opts.Progress {
		info, err := file.Stat()
		if err != nil {
			return nil, errors.Trace(err)
		}
		pbReader := progressbar.NewReader(file, progressbar.DefaultBytes(info.Size(), "Loading ratings"))
		r = &pbReader
	}
	return ReadCSV(r, opts)
}

// ReadCSV parses ratings from a reader.
func ReadCSV(r io.Reader, opts CSVOptions) ([]Rating, error) {
	reader := csv.NewReader(r)
	if opts.Separator != 0 {
		reader.Comma = opts.Separator
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	var ratings []Rating
	for lineNumber := 1; ; lineNumber++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		if lineNumber == 1 && opts.Header {
			continue
		}
		rating, err := parseRecord(record)
		if err != nil {
			return nil, errors.Annotatef(err, "line %d", lineNumber)
		}
		ratings = append(ratings, rating)
	}
	return ratings, nil
}

func parseRecord(record []string) (Rating, error) {
	if len(record) < 3 {
		return Rating{}, errors.NotValidf("expect at least 3 fields, get %d", len(record))
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil {
		return Rating{}, errors.Trace(err)
	}
	rating := Rating{
		UserId: strings.TrimSpace(record[0]),
		ItemId: strings.TrimSpace(record[1]),
		Value:  value,
	}
	if len(record) > 3 && strings.TrimSpace(record[3]) != "" {
		rating.Timestamp, err = dateparse.ParseAny(strings.TrimSpace(record[3]))
		if err != nil {
			return Rating{}, errors.Trace(err)
		}
	}
	if err = rating.Validate(); err != nil {
		return Rating{}, errors.Trace(err)
	}
	return rating, nil
}
