// Package instrument provides coverage.Instrumenter implementations backed by
// the output of an external Solidity instrumentation tool.
package instrument

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"

	"github.com/clydemeng/solcov/coverage"
)

const defaultCacheSize = 128

// FileInstrumenter reads instrumentation dumps from a directory. The dump of
// Foo.sol is expected at <dir>/Foo.json and holds the runnableLines and fnMap
// the instrumentation tool produced for it, other keys are ignored. Results are
// cached by file name and content hash.
type FileInstrumenter struct {
	dir   string
	cache *lru.Cache
}

// NewFileInstrumenter creates an instrumenter reading from dir, caching up to
// cacheSize files. A non-positive cacheSize selects the default.
func NewFileInstrumenter(dir string, cacheSize int) (*FileInstrumenter, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &FileInstrumenter{dir: dir, cache: cache}, nil
}

// Instrument implements coverage.Instrumenter. A file without a dump has no
// runnable lines.
func (f *FileInstrumenter) Instrument(source, fileName string) (*coverage.Instrumentation, error) {
	key := fileName + "@" + crypto.Keccak256Hash([]byte(source)).Hex()
	if cached, ok := f.cache.Get(key); ok {
		return cached.(*coverage.Instrumentation), nil
	}
	inst, err := f.load(source, fileName)
	if err != nil {
		return nil, err
	}
	f.cache.Add(key, inst)
	return inst, nil
}

func (f *FileInstrumenter) load(source, fileName string) (*coverage.Instrumentation, error) {
	name := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	path := filepath.Join(f.dir, name+".json")

	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("No instrumentation for source, no lines are runnable", "source", fileName)
		return &coverage.Instrumentation{}, nil
	}
	if err != nil {
		return nil, err
	}
	inst := new(coverage.Instrumentation)
	if err := json.Unmarshal(blob, inst); err != nil {
		return nil, fmt.Errorf("parse instrumentation %s: %w", path, err)
	}
	if err := validate(inst, strings.Count(source, "\n")+1); err != nil {
		return nil, fmt.Errorf("instrumentation %s: %w", path, err)
	}
	log.Debug("Loaded instrumentation", "source", fileName, "lines", len(inst.RunnableLines), "functions", len(inst.FnMap))
	return inst, nil
}

// validate rejects dumps that do not belong to a source with the given number
// of lines.
func validate(inst *coverage.Instrumentation, lines int) error {
	for _, line := range inst.RunnableLines {
		if line < 1 || line > lines {
			return fmt.Errorf("runnable line %d outside of source (%d lines)", line, lines)
		}
	}
	for id, fn := range inst.FnMap {
		if fn.Line < 1 || fn.Line > lines {
			return fmt.Errorf("function %d (%s) declared on line %d outside of source", id, fn.Name, fn.Line)
		}
	}
	return nil
}
