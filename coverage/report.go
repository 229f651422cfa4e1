package coverage

import (
	"bytes"
	"encoding/json"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// FileCoverage is the Istanbul coverage record of one source file. Statement
// and branch coverage are emitted empty.
type FileCoverage struct {
	Lines      map[int]int                 `json:"l"`
	Functions  map[int]int                 `json:"f"`
	Statements map[int]int                 `json:"s"`
	Branches   map[int]int                 `json:"b"`
	FnMap      map[int]FunctionDescription `json:"fnMap"`
	BranchMap  map[int]json.RawMessage     `json:"branchMap"`
	Path       string                      `json:"path"`
}

// newFileCoverage seeds a record with a zero count for every runnable line and
// every declared function.
func newFileCoverage(path string, inst *Instrumentation) *FileCoverage {
	fc := &FileCoverage{
		Lines:      make(map[int]int),
		Functions:  make(map[int]int),
		Statements: make(map[int]int),
		Branches:   make(map[int]int),
		FnMap:      make(map[int]FunctionDescription),
		BranchMap:  make(map[int]json.RawMessage),
		Path:       path,
	}
	if inst == nil {
		return fc
	}
	for _, line := range inst.RunnableLines {
		fc.Lines[line] = 0
	}
	for id, fn := range inst.FnMap {
		fc.FnMap[id] = fn
		fc.Functions[id] = 0
	}
	return fc
}

// addTrace counts one trace that touched the given set of distinct lines.
// Lines and functions that were not declared runnable are ignored.
func (fc *FileCoverage) addTrace(lines mapset.Set[int]) {
	lines.Each(func(line int) bool {
		if _, ok := fc.Lines[line]; ok {
			fc.Lines[line]++
		}
		return false
	})
	for id, fn := range fc.FnMap {
		if lines.Contains(fn.Line) {
			fc.Functions[id]++
		}
	}
}

// merge adds the counts of other to fc. Function metadata already present in
// fc is kept.
func (fc *FileCoverage) merge(other *FileCoverage) {
	for line, hits := range other.Lines {
		fc.Lines[line] += hits
	}
	for id, hits := range other.Functions {
		fc.Functions[id] += hits
	}
	for id, fn := range other.FnMap {
		if _, ok := fc.FnMap[id]; !ok {
			fc.FnMap[id] = fn
		}
	}
}

func (fc *FileCoverage) clone() *FileCoverage {
	out := newFileCoverage(fc.Path, nil)
	out.merge(fc)
	return out
}

// CoveredLines returns the number of lines with a hit count above zero.
func (fc *FileCoverage) CoveredLines() int {
	covered := 0
	for _, hits := range fc.Lines {
		if hits > 0 {
			covered++
		}
	}
	return covered
}

// CoveredFunctions returns the number of functions with a hit count above zero.
func (fc *FileCoverage) CoveredFunctions() int {
	covered := 0
	for _, hits := range fc.Functions {
		if hits > 0 {
			covered++
		}
	}
	return covered
}

// MissedLines returns the lines that were never hit, in ascending order.
func (fc *FileCoverage) MissedLines() []int {
	missed := make([]int, 0)
	for line, hits := range fc.Lines {
		if hits == 0 {
			missed = append(missed, line)
		}
	}
	slices.Sort(missed)
	return missed
}

// Report is the merged coverage of a run, keyed by source file path.
type Report map[string]*FileCoverage

// Merge folds other into r. Records of the same file have their counts summed.
func (r Report) Merge(other Report) {
	for path, fc := range other {
		if existing, ok := r[path]; ok {
			existing.merge(fc)
			continue
		}
		r[path] = fc.clone()
	}
}

// Paths returns the file paths of the report in ascending order.
func (r Report) Paths() []string {
	paths := maps.Keys(r)
	slices.Sort(paths)
	return paths
}

// Summary contains the aggregate metrics of a report.
type Summary struct {
	Files            int `json:"files"`
	Lines            int `json:"lines"`
	CoveredLines     int `json:"coveredLines"`
	Functions        int `json:"functions"`
	CoveredFunctions int `json:"coveredFunctions"`
}

// Summary aggregates the report over all files.
func (r Report) Summary() Summary {
	s := Summary{Files: len(r)}
	for _, fc := range r {
		s.Lines += len(fc.Lines)
		s.CoveredLines += fc.CoveredLines()
		s.Functions += len(fc.FnMap)
		s.CoveredFunctions += fc.CoveredFunctions()
	}
	return s
}

// Percentage returns the share of covered lines. A report without runnable
// lines is fully covered.
func (s Summary) Percentage() string {
	return percentage(s.CoveredLines, s.Lines)
}

func percentage(covered, total int) string {
	if total == 0 {
		return "100.0%"
	}
	return fmt.Sprintf("%0.1f%%", 100*float64(covered)/float64(total))
}

// MarshalLCOV serializes the report in LCOV tracefile format.
func (r Report) MarshalLCOV() ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, path := range r.Paths() {
		fc := r[path]
		fmt.Fprintf(buf, "TN:\nSF:%s\n", path)

		ids := maps.Keys(fc.FnMap)
		slices.Sort(ids)
		for _, id := range ids {
			fmt.Fprintf(buf, "FN:%d,%s\n", fc.FnMap[id].Line, fc.FnMap[id].Name)
		}
		for _, id := range ids {
			fmt.Fprintf(buf, "FNDA:%d,%s\n", fc.Functions[id], fc.FnMap[id].Name)
		}
		fmt.Fprintf(buf, "FNF:%d\nFNH:%d\n", len(ids), fc.CoveredFunctions())

		lines := maps.Keys(fc.Lines)
		slices.Sort(lines)
		for _, line := range lines {
			fmt.Fprintf(buf, "DA:%d,%d\n", line, fc.Lines[line])
		}
		fmt.Fprintf(buf, "LF:%d\nLH:%d\nend_of_record\n", len(lines), fc.CoveredLines())
	}
	return buf.Bytes(), nil
}
