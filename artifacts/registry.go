// Package artifacts loads the compiled programs a coverage run can attribute
// traces to.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
)

// ErrMissingNetwork is returned when an artifact has no build output for the
// configured network.
var ErrMissingNetwork = errors.New("artifact has no entry for network")

// Program is a deployable compiled program together with the sources it was
// compiled from. Sources and SourceCodes are parallel and ordered as the
// compiler numbered the files in the source map.
type Program struct {
	Name             string
	RuntimeBytecode  string // 0x-prefixed hex
	SourceMapRuntime string
	Sources          []string
	SourceCodes      []string
}

// Config tells Load where to find sources and compiler output.
type Config struct {
	ArtifactsPath string
	SourcesPath   string
	NetworkID     uint64
}

// artifact is the on-disk compiler output of one program.
type artifact struct {
	Networks map[string]networkArtifact `json:"networks"`
}

type networkArtifact struct {
	Sources          []string `json:"sources"`
	SourceMapRuntime string   `json:"source_map_runtime"`
	RuntimeBytecode  string   `json:"runtime_bytecode"`
}

// Registry is the immutable set of programs known to a coverage run.
type Registry struct {
	programs []*Program
}

// NewRegistry creates a registry holding the given programs.
func NewRegistry(programs ...*Program) *Registry {
	return &Registry{programs: programs}
}

// Load builds a Program for every Solidity source below cfg.SourcesPath that
// has a compiled artifact of the same base name in cfg.ArtifactsPath. Sources
// without an artifact are skipped, they are usually only included by other
// programs. An artifact that cannot be parsed aborts loading.
func Load(cfg Config) (*Registry, error) {
	root, err := filepath.Abs(cfg.SourcesPath)
	if err != nil {
		return nil, err
	}
	files, err := doublestar.FilepathGlob(filepath.Join(root, "**", "*.sol"))
	if err != nil {
		return nil, fmt.Errorf("glob sources: %w", err)
	}
	sort.Strings(files)

	network := strconv.FormatUint(cfg.NetworkID, 10)
	reg := new(Registry)
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".sol")
		artifactFile := filepath.Join(cfg.ArtifactsPath, name+".json")
		blob, err := os.ReadFile(artifactFile)
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("Skipping source without artifact", "source", file)
			continue
		}
		if err != nil {
			return nil, err
		}
		var a artifact
		if err := json.Unmarshal(blob, &a); err != nil {
			return nil, fmt.Errorf("parse artifact %s: %w", artifactFile, err)
		}
		out, ok := a.Networks[network]
		if !ok {
			return nil, fmt.Errorf("%w %s: %s", ErrMissingNetwork, network, artifactFile)
		}
		program := &Program{
			Name:             name,
			RuntimeBytecode:  out.RuntimeBytecode,
			SourceMapRuntime: out.SourceMapRuntime,
		}
		for _, source := range out.Sources {
			path, err := resolveSource(root, source)
			if err != nil {
				return nil, fmt.Errorf("artifact %s: %w", artifactFile, err)
			}
			code, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			program.Sources = append(program.Sources, path)
			program.SourceCodes = append(program.SourceCodes, string(code))
		}
		log.Debug("Loaded program", "name", name, "sources", len(program.Sources))
		reg.programs = append(reg.programs, program)
	}
	log.Info("Loaded program registry", "programs", len(reg.programs), "sources", len(files))
	return reg, nil
}

// resolveSource finds the absolute path of a source listed in an artifact.
func resolveSource(root, source string) (string, error) {
	matches, err := doublestar.FilepathGlob(filepath.Join(root, "**", filepath.FromSlash(source)))
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", source, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("source %s not found below %s", source, root)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// Programs returns every loaded program.
func (r *Registry) Programs() []*Program {
	return r.programs
}

// Len returns the number of loaded programs.
func (r *Registry) Len() int {
	return len(r.programs)
}

// ByBytecode returns the program whose runtime bytecode is exactly code, or nil.
func (r *Registry) ByBytecode(code []byte) *Program {
	want := hexutil.Encode(code)
	for _, p := range r.programs {
		if strings.EqualFold(p.RuntimeBytecode, want) {
			return p
		}
	}
	return nil
}
