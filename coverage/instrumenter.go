package coverage

import "github.com/clydemeng/solcov/sourcemap"

// FunctionDescription is the instrumentation metadata of one function.
type FunctionDescription struct {
	Name string             `json:"name"`
	Line int                `json:"line"`
	Loc  sourcemap.Location `json:"loc"`
	Skip bool               `json:"skip,omitempty"`
}

// Instrumentation lists what in a source file is eligible for coverage.
// Branch descriptions of the instrumentation tool are not consumed, branch
// hits are not counted.
type Instrumentation struct {
	RunnableLines []int                       `json:"runnableLines"`
	FnMap         map[int]FunctionDescription `json:"fnMap"`
}

// Instrumenter determines the runnable lines and declared functions of a
// source file.
type Instrumenter interface {
	Instrument(source, fileName string) (*Instrumentation, error)
}
