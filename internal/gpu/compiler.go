//go:build !nogpu

package gpu

import (
	"bufio"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
)

// Define is a preprocessor definition. A Define without a value only
// marks Name as defined.
type Define struct {
	Name  string
	Value string
}

// ShaderCompiler compiles WGSL files from a file system into blobs. Results
// are cached by path, entry, profile and defines.
type ShaderCompiler struct {
	fsys   fs.FS
	target BlobKind
	debug  bool

	mu    sync.Mutex
	cache map[string]*Blob
}

// NewShaderCompiler returns a compiler emitting target code.
func NewShaderCompiler(fsys fs.FS, target BlobKind, debug bool) *ShaderCompiler {
	return &ShaderCompiler{fsys: fsys, target: target, debug: debug, cache: make(map[string]*Blob)}
}

// Target returns the code format the compiler emits.
func (c *ShaderCompiler) Target() BlobKind { return c.target }

// Compile preprocesses, validates and translates one entry point. The
// profile names the stage and shader model, e.g. "cs_6_0" or "ms_6_5".
func (c *ShaderCompiler) Compile(path, entry, profile string, defines []Define) (*Blob, error) {
	key := cacheKey(path, entry, profile, defines)
	c.mu.Lock()
	if b, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return b, nil
	}
	c.mu.Unlock()

	stage, model, err := parseProfile(profile)
	if err != nil {
		return nil, err
	}
	raw, err := fs.ReadFile(c.fsys, path)
	if err != nil {
		return nil, fmt.Errorf("gpu: read shader %s: %w", path, err)
	}
	src, err := Preprocess(string(raw), defines)
	if err != nil {
		return nil, c.fail(path, entry, err)
	}

	ast, err := naga.Parse(src)
	if err != nil {
		return nil, c.fail(path, entry, err)
	}
	module, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return nil, c.fail(path, entry, err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, c.fail(path, entry, err)
	}
	if len(verrs) > 0 {
		for _, ve := range verrs {
			slogger().Error("gpu: shader validation", "path", path, "entry", entry, "function", ve.Function, "msg", ve.Message)
		}
		return nil, fmt.Errorf("%w: %s:%s: %s", ErrCompile, path, entry, verrs[0].Message)
	}
	if err := checkEntry(module, entry, stage); err != nil {
		return nil, c.fail(path, entry, err)
	}

	blob := &Blob{Kind: c.target, Entry: entry, Source: src}
	switch c.target {
	case BlobHLSL:
		opts := hlsl.DefaultOptions()
		opts.ShaderModel = model
		opts.EntryPoint = entry
		code, _, err := hlsl.Compile(module, opts)
		if err != nil {
			return nil, c.fail(path, entry, err)
		}
		blob.Data = []byte(code)
	default:
		code, err := naga.GenerateSPIRV(module, spirv.Options{
			Version: spirv.Version1_3,
			Debug:   c.debug,
		})
		if err != nil {
			return nil, c.fail(path, entry, err)
		}
		blob.Data = code
	}

	c.mu.Lock()
	c.cache[key] = blob
	c.mu.Unlock()
	slogger().Debug("gpu: shader compiled", "path", path, "entry", entry, "profile", profile, "bytes", len(blob.Data))
	return blob, nil
}

func (c *ShaderCompiler) fail(path, entry string, err error) error {
	slogger().Error("gpu: shader compilation", "path", path, "entry", entry, "err", err)
	return fmt.Errorf("%w: %s:%s: %w", ErrCompile, path, entry, err)
}

func cacheKey(path, entry, profile string, defines []Define) string {
	var b strings.Builder
	b.WriteString(path)
	b.WriteByte('|')
	b.WriteString(entry)
	b.WriteByte('|')
	b.WriteString(profile)
	for _, d := range defines {
		b.WriteByte('|')
		b.WriteString(d.Name)
		b.WriteByte('=')
		b.WriteString(d.Value)
	}
	return b.String()
}

var profileStages = map[string]ir.ShaderStage{
	"vs": ir.StageVertex,
	"ps": ir.StageFragment,
	"cs": ir.StageCompute,
	"as": ir.StageTask,
	"ms": ir.StageMesh,
}

// parseProfile splits "cs_6_0" into a stage and a shader model.
func parseProfile(profile string) (ir.ShaderStage, hlsl.ShaderModel, error) {
	parts := strings.Split(profile, "_")
	if len(parts) != 3 {
		return 0, 0, fmt.Errorf("gpu: bad shader profile %q", profile)
	}
	stage, ok := profileStages[parts[0]]
	if !ok {
		return 0, 0, fmt.Errorf("gpu: unknown shader stage in profile %q", profile)
	}
	major, err1 := strconv.Atoi(parts[1])
	minor, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("gpu: bad shader model in profile %q", profile)
	}
	var model hlsl.ShaderModel
	switch {
	case major == 5 && minor <= 1:
		model = hlsl.ShaderModel5_0 + hlsl.ShaderModel(minor)
	case major == 6 && minor <= 7:
		model = hlsl.ShaderModel6_0 + hlsl.ShaderModel(minor)
	default:
		return 0, 0, fmt.Errorf("gpu: unsupported shader model in profile %q", profile)
	}
	if (stage == ir.StageTask || stage == ir.StageMesh) && model < hlsl.ShaderModel6_5 {
		return 0, 0, fmt.Errorf("gpu: profile %q: mesh stages need shader model 6.5", profile)
	}
	return stage, model, nil
}

func checkEntry(m *ir.Module, entry string, stage ir.ShaderStage) error {
	for _, ep := range m.EntryPoints {
		if ep.Name != entry {
			continue
		}
		if ep.Stage != stage {
			return fmt.Errorf("entry point %s has stage %d, profile wants %d", entry, ep.Stage, stage)
		}
		return nil
	}
	return fmt.Errorf("entry point %s not found", entry)
}

var directiveRE = regexp.MustCompile(`^\s*#(define|ifdef|ifndef|else|endif)\b\s*(\w*)\s*(.*?)\s*$`)

// Preprocess applies #define, #ifdef, #ifndef, #else and #endif to WGSL
// source and substitutes defined values as whole words.
func Preprocess(src string, defines []Define) (string, error) {
	values := make(map[string]string, len(defines))
	var order []string
	define := func(name, value string) {
		if _, ok := values[name]; !ok {
			order = append(order, name)
		}
		values[name] = value
	}
	for _, d := range defines {
		define(d.Name, d.Value)
	}

	type frame struct{ active, parent, seenElse bool }
	var stack []frame
	active := true

	var out []string
	sc := bufio.NewScanner(strings.NewReader(src))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		m := directiveRE.FindStringSubmatch(line)
		if m == nil {
			if active {
				out = append(out, line)
			} else {
				out = append(out, "")
			}
			continue
		}
		switch m[1] {
		case "define":
			if m[2] == "" {
				return "", fmt.Errorf("line %d: #define without a name", lineNo)
			}
			if active {
				define(m[2], m[3])
			}
		case "ifdef", "ifndef":
			if m[2] == "" {
				return "", fmt.Errorf("line %d: #%s without a name", lineNo, m[1])
			}
			_, ok := values[m[2]]
			if m[1] == "ifndef" {
				ok = !ok
			}
			stack = append(stack, frame{active: ok, parent: active})
			active = active && ok
		case "else":
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: #else without #ifdef", lineNo)
			}
			top := &stack[len(stack)-1]
			if top.seenElse {
				return "", fmt.Errorf("line %d: duplicate #else", lineNo)
			}
			top.seenElse = true
			top.active = !top.active
			active = top.parent && top.active
		case "endif":
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: #endif without #ifdef", lineNo)
			}
			active = stack[len(stack)-1].parent
			stack = stack[:len(stack)-1]
		}
		// Directives become blank lines so diagnostics keep line numbers.
		out = append(out, "")
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(stack) > 0 {
		return "", fmt.Errorf("%d unterminated #ifdef", len(stack))
	}

	text := strings.Join(out, "\n")
	for _, name := range order {
		v := values[name]
		if v == "" {
			continue
		}
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
		text = re.ReplaceAllLiteralString(text, v)
	}
	return text, nil
}
