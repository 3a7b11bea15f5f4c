package gpu

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// queryFields is the column order requested from the inventory tool.
var queryFields = []string{
	"index",
	"name",
	"utilization.gpu",
	"memory.used",
	"memory.total",
	"temperature.gpu",
	"power.draw",
	"power.limit",
}

const (
	fieldCount = 8

	// numeric columns trailing the name
	numericFields = fieldCount - 2
)

// Placeholder tokens the tool prints instead of a value.
var placeholders = map[string]struct{}{
	"[N/A]":           {},
	"[Not Supported]": {},
}

// SkipReason classifies why a line produced no record.
type SkipReason string

const (
	SkipTooFewFields SkipReason = "too_few_fields"
	SkipBadIndex     SkipReason = "bad_index"
	SkipBadNumber    SkipReason = "bad_number"
)

// SkipReasons lists every reason in a stable order.
var SkipReasons = [...]SkipReason{SkipTooFewFields, SkipBadIndex, SkipBadNumber}

var (
	ErrTooFewFields = errors.New("too few fields")
	ErrBadIndex     = errors.New("invalid gpu index")
	ErrBadNumber    = errors.New("invalid numeric field")
)

// ParseError reports a skipped inventory line.
type ParseError struct {
	Line   int
	Reason SkipReason
	Field  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("line %d: %s (%s): %v", e.Line, e.Reason, e.Field, e.Err)
	}
	return fmt.Sprintf("line %d: %s: %v", e.Line, e.Reason, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// LineResult is the outcome of parsing one line: either a record or a skip.
type LineResult struct {
	Record Record
	Err    *ParseError
}

// OK reports whether the line produced a record.
func (r LineResult) OK() bool {
	return r.Err == nil
}

// ParseResult collects records in tool order along with skipped lines.
type ParseResult struct {
	Records []Record
	Skipped []*ParseError
}

// ParseOutput parses the tool's stdout. Blank lines are ignored.
func ParseOutput(out []byte) ParseResult {
	result := ParseResult{Records: make([]Record, 0)}

	for i, line := range strings.Split(string(out), "\n") {
		lineNo := i + 1
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		res := ParseLine(line)
		if !res.OK() {
			res.Err.Line = lineNo
			result.Skipped = append(result.Skipped, res.Err)
			continue
		}
		result.Records = append(result.Records, res.Record)
	}
	return result
}

// ParseLine parses a single non-blank line by field position.
func ParseLine(line string) LineResult {
	raw := strings.Split(line, ",")
	if len(raw) < fieldCount {
		return skip(SkipTooFewFields, "", fmt.Errorf("%w: got %d, want %d", ErrTooFewFields, len(raw), fieldCount))
	}

	// The name is the only free-text column; anything between the index
	// and the trailing numeric columns belongs to it, commas included.
	nameEnd := len(raw) - numericFields
	name := strings.TrimSpace(strings.Join(raw[1:nameEnd], ","))
	for i := range raw {
		raw[i] = strings.TrimSpace(raw[i])
	}
	nums := raw[nameEnd:]

	index, err := strconv.Atoi(raw[0])
	if err != nil || index < 0 {
		if err == nil {
			err = fmt.Errorf("negative value %d", index)
		}
		return skip(SkipBadIndex, queryFields[0], fmt.Errorf("%w: %v", ErrBadIndex, err))
	}

	defaults := [numericFields]float64{0, 0, 1, 0, 0, 1}
	var values [numericFields]float64
	for i, field := range nums {
		v, err := parseNumber(field, defaults[i])
		if err != nil {
			return skip(SkipBadNumber, queryFields[i+2], fmt.Errorf("%w: %v", ErrBadNumber, err))
		}
		values[i] = v
	}

	return LineResult{Record: newRecord(index, name, values[0], values[1], values[2], values[3], values[4], values[5])}
}

func parseNumber(field string, fallback float64) (float64, error) {
	if _, ok := placeholders[field]; ok {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", field)
	}
	return v, nil
}

func skip(reason SkipReason, field string, err error) LineResult {
	return LineResult{Err: &ParseError{Reason: reason, Field: field, Err: err}}
}
