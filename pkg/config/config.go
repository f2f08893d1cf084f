package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/minghu6/bas/pkg/util"
	"modernc.org/libqbe"
)

type Feature int

const (
	FeatCmd Feature = iota
	FeatSideEffect
	FeatCompoundAssign
	FeatWhile
	FeatImplicitEntry
	FeatCount
)

type Warning int

const (
	WarnUnreachableCode Warning = iota
	WarnShadow
	WarnUnusedValue
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

const (
	BackendLLVM = "llvm"
	BackendQBE  = "qbe"
)

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning

	Entry      string
	Backend    string
	TargetArch string
	QbeTarget  string
	WordSize   int
	WordType   string

	Output     string
	Emit       string
	Jobs       int
	CacheDir   string
	RuntimeLib string
	LinkerArgs []string
	DumpMIR    bool
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
		Entry:      "main",
		Backend:    BackendQBE,
		Emit:       "exe",
		Jobs:       runtime.GOMAXPROCS(0),
		WordSize:   8,
		WordType:   "l",
	}

	features := map[Feature]Info{
		FeatCmd:            {"cmd", true, "Allow `!( ... )` command literals."},
		FeatSideEffect:     {"side-effect", true, "Allow `++`/`--` on variables."},
		FeatCompoundAssign: {"compound-assign", true, "Recognize assignment operators like '+='."},
		FeatWhile:          {"while", true, "Allow `while` loops."},
		FeatImplicitEntry:  {"implicit-entry", true, "Treat the entry function as @no_mangle @vararg."},
	}

	warnings := map[Warning]Info{
		WarnUnreachableCode: {"unreachable-code", true, "Warn about statements after a diverging expression."},
		WarnShadow:          {"shadow", false, "Warn when `let` shadows a binding in the same function."},
		WarnUnusedValue:     {"unused-value", false, "Warn when a pure expression statement discards its value."},
		WarnExtra:           {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}
	if home := os.Getenv("BAS_HOME"); home != "" {
		cfg.RuntimeLib = filepath.Join(home, "lib", "libbas.a")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		cfg.CacheDir = filepath.Join(dir, "basc")
	}

	return cfg
}

// SetTarget configures the word size and QBE target for an architecture.
func (c *Config) SetTarget(goos, goarch, qbeTarget string) {
	if qbeTarget == "" {
		c.QbeTarget = libqbe.DefaultTarget(goos, goarch)
		util.Info("no target specified, defaulting to host target '%s'", c.QbeTarget)
	} else {
		c.QbeTarget = qbeTarget
		util.Info("using specified target '%s'", c.QbeTarget)
	}

	c.TargetArch = goarch

	switch c.QbeTarget {
	case "amd64_sysv", "amd64_apple", "arm64", "arm64_apple", "rv64":
		c.WordSize, c.WordType = 8, "l"
	case "arm", "rv32":
		c.WordSize, c.WordType = 4, "w"
	default:
		util.Warn("unrecognized or unsupported QBE target '%s'.", c.QbeTarget)
		util.Warn("defaulting to 64-bit properties. Compilation may fail.")
		c.WordSize, c.WordType = 8, "l"
	}
}

func (c *Config) SetBackend(name string) error {
	switch name {
	case BackendLLVM, BackendQBE:
		c.Backend = name
		return nil
	}
	return fmt.Errorf("unsupported backend '%s'. Supported: '%s', '%s'", name, BackendQBE, BackendLLVM)
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// Fingerprint lists every setting that changes generated code, in a stable
// order, for cache keys.
func (c *Config) Fingerprint() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "entry=%s;backend=%s;target=%s;word=%d;", c.Entry, c.Backend, c.QbeTarget, c.WordSize)
	for i := Feature(0); i < FeatCount; i++ {
		fmt.Fprintf(&sb, "%s=%t;", c.Features[i].Name, c.Features[i].Enabled)
	}
	return sb.String()
}

func (c *Config) applyFlag(flag string) error {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		return fmt.Errorf("unrecognized flag '%s'", flag)
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return nil
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
			return nil
		}
		return fmt.Errorf("unknown warning '%s'", name)
	}
	if f, ok := c.FeatureMap[name]; ok {
		c.SetFeature(f, enable)
		return nil
	}
	return fmt.Errorf("unknown feature '%s'", name)
}

// ProcessFlags applies -W/-F flags; -Wall and -Wno-all go first so that
// individual flags can refine them.
func (c *Config) ProcessFlags(visitFlag func(fn func(name string))) error {
	var firstErr error
	apply := func(name string) {
		if err := c.applyFlag("-" + name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	visitFlag(func(name string) {
		if name == "Wall" || name == "Wno-all" {
			apply(name)
		}
	})
	visitFlag(func(name string) {
		if name != "Wall" && name != "Wno-all" {
			apply(name)
		}
	})
	return firstErr
}

// Manifest is the optional bas.toml project file.
type Manifest struct {
	Entry   string   `toml:"entry"`
	Backend string   `toml:"backend"`
	Target  string   `toml:"target"`
	Output  string   `toml:"output"`
	Jobs    int      `toml:"jobs"`
	Runtime string   `toml:"runtime"`
	Cache   string   `toml:"cache_dir"`
	Flags   []string `toml:"flags"`
	Linker  []string `toml:"linker_args"`
}

// LoadFile reads a manifest and applies it on top of the defaults.
func (c *Config) LoadFile(path string) error {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return c.ApplyManifest(m)
}

func (c *Config) ApplyManifest(m Manifest) error {
	if m.Entry != "" {
		c.Entry = m.Entry
	}
	if m.Backend != "" {
		if err := c.SetBackend(m.Backend); err != nil {
			return err
		}
	}
	if m.Target != "" {
		c.QbeTarget = m.Target
	}
	if m.Output != "" {
		c.Output = m.Output
	}
	if m.Jobs > 0 {
		c.Jobs = m.Jobs
	}
	if m.Runtime != "" {
		c.RuntimeLib = m.Runtime
	}
	if m.Cache != "" {
		c.CacheDir = m.Cache
	}
	c.LinkerArgs = append(c.LinkerArgs, m.Linker...)
	for _, f := range m.Flags {
		if err := c.applyFlag(f); err != nil {
			return fmt.Errorf("manifest: %w", err)
		}
	}
	return nil
}
