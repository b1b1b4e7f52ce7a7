package hcl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/grasptest/internal/config"
	"github.com/specialistvlad/grasptest/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL settings loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot is a struct used to decode the top-level blocks of a settings file.
type fileRoot struct {
	Engine *engineBlock `hcl:"engine,block"`
	Run    *runBlock    `hcl:"run,block"`
}

type engineBlock struct {
	URL      *string `hcl:"url,optional"`
	Pipeline *string `hcl:"pipeline,optional"`
}

type runBlock struct {
	PollInterval  *string `hcl:"poll_interval,optional"`
	Transactional *bool   `hcl:"transactional,optional"`
	CacheDir      *string `hcl:"cache_dir,optional"`
	ProgramDir    *string `hcl:"program_dir,optional"`
	Grammar       *string `hcl:"grammar,optional"`
}

// Load implements config.Loader.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	model := config.Default()

	if path == "" {
		return model, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("No settings file, using defaults.", "path", path)
			return model, nil
		}
		return nil, fmt.Errorf("error accessing settings file %s: %w", path, err)
	}

	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(file.Body, evalContext(), &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	if err := apply(model, &root, filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	logger.Debug("Settings file loaded.", "path", path)
	return model, nil
}

// apply copies every value set in root onto model.
func apply(model *config.Model, root *fileRoot, baseDir string) error {
	if e := root.Engine; e != nil {
		setString(&model.EngineURL, e.URL)
		setString(&model.Pipeline, e.Pipeline)
	}
	r := root.Run
	if r == nil {
		return nil
	}
	if r.PollInterval != nil {
		d, err := time.ParseDuration(*r.PollInterval)
		if err != nil {
			return fmt.Errorf("poll_interval: %w", err)
		}
		model.PollInterval = d
	}
	if r.Transactional != nil {
		model.Transactional = *r.Transactional
	}
	setPath(&model.CacheDir, r.CacheDir, baseDir)
	setPath(&model.ProgramDir, r.ProgramDir, baseDir)
	setPath(&model.GrammarPath, r.Grammar, baseDir)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setPath(dst *string, v *string, baseDir string) {
	if v == nil {
		return
	}
	if *v == "" || filepath.IsAbs(*v) {
		*dst = *v
		return
	}
	*dst = filepath.Join(baseDir, *v)
}

func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"env": envFunc,
		},
	}
}

// envFunc is env(name[, default]): the value of the environment variable,
// or default when it is unset.
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	VarParam: &function.Parameter{Name: "default", Type: cty.String},
	Type:     function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		name := args[0].AsString()
		if len(args) > 2 {
			return cty.NilVal, fmt.Errorf("env takes at most one default, got %d", len(args)-1)
		}
		if v, ok := os.LookupEnv(name); ok {
			return cty.StringVal(v), nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return cty.NilVal, fmt.Errorf("environment variable %s is not set", name)
	},
})
