package instrument

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clydemeng/solcov/sourcemap"
)

const tokenSource = "contract Token {\n  function transfer() {\n    x = 1;\n  }\n}\n"

func TestFileInstrumenter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Token.json"), []byte(`{
		"runnableLines": [3],
		"fnMap": {"1": {"name": "transfer", "line": 2, "loc": {"start": {"line": 2, "column": 2}, "end": {"line": 4, "column": 3}}}},
		"branchMap": {}
	}`), 0o644))

	inst, err := NewFileInstrumenter(dir, 0)
	require.NoError(t, err)

	got, err := inst.Instrument(tokenSource, "/src/contracts/Token.sol")
	require.NoError(t, err)
	require.Equal(t, []int{3}, got.RunnableLines)
	require.Equal(t, "transfer", got.FnMap[1].Name)
	require.Equal(t, sourcemap.LineColumn{Line: 4, Column: 3}, got.FnMap[1].Loc.End)

	// Served from the cache even after the dump is gone.
	require.NoError(t, os.Remove(filepath.Join(dir, "Token.json")))
	again, err := inst.Instrument(tokenSource, "/src/contracts/Token.sol")
	require.NoError(t, err)
	require.Same(t, got, again)

	// A changed source misses the cache.
	missing, err := inst.Instrument(tokenSource+"\n", "/src/contracts/Token.sol")
	require.NoError(t, err)
	require.Empty(t, missing.RunnableLines)
}

func TestFileInstrumenterInvalid(t *testing.T) {
	dir := t.TempDir()
	inst, err := NewFileInstrumenter(dir, 4)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Broken.json"), []byte(`{"runnableLines": [`), 0o644))
	_, err = inst.Instrument("contract Broken {}\n", "Broken.sol")
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Short.json"), []byte(`{"runnableLines": [40]}`), 0o644))
	_, err = inst.Instrument("contract Short {}\n", "Short.sol")
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Fn.json"), []byte(`{"fnMap": {"1": {"name": "f", "line": 0}}}`), 0o644))
	_, err = inst.Instrument("contract Fn {}\n", "Fn.sol")
	require.Error(t, err)
}
