package languages

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

const CapabilityTSNode = "ts-node"

// Probe reports whether capability is available on this host.
type Probe func(ctx context.Context, capability string) bool

// Resolver maps language ids to toolchains. The table is fixed at construction;
// capability probes run once per capability and are cached.
type Resolver struct {
	languages map[string]Language
	probe     Probe

	mu     sync.RWMutex
	probed map[string]bool
	group  singleflight.Group
}

func NewResolver(probe Probe) *Resolver {
	r := &Resolver{
		languages: make(map[string]Language),
		probe:     probe,
		probed:    make(map[string]bool),
	}
	r.registerDefaults()
	return r
}

func (r *Resolver) register(lang Language) {
	r.languages[lang.ID] = lang
}

// Supports reports whether id is a known language without probing anything.
func (r *Resolver) Supports(id string) bool {
	_, ok := r.languages[id]
	return ok
}

func (r *Resolver) Resolve(ctx context.Context, id string) (Toolchain, error) {
	lang, ok := r.languages[id]
	if !ok {
		return Toolchain{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, id)
	}
	cfg := lang.Config
	if lang.Requires != "" && lang.Fallback != nil && !r.available(ctx, lang.Requires) {
		cfg = *lang.Fallback
	}
	return Toolchain{Language: lang.ID, RuntimeConfig: cfg}, nil
}

func (r *Resolver) available(ctx context.Context, capability string) bool {
	r.mu.RLock()
	ok, done := r.probed[capability]
	r.mu.RUnlock()
	if done {
		return ok
	}
	if r.probe == nil {
		return false
	}
	v, _, _ := r.group.Do(capability, func() (any, error) {
		r.mu.RLock()
		ok, done := r.probed[capability]
		r.mu.RUnlock()
		if done {
			return ok, nil
		}
		ok = r.probe(context.WithoutCancel(ctx), capability)
		r.mu.Lock()
		r.probed[capability] = ok
		r.mu.Unlock()
		log.Info().Str("module", "languages").Str("capability", capability).Bool("available", ok).Msg("capability probed")
		return ok, nil
	})
	return v.(bool)
}

func (r *Resolver) List() []Language {
	langs := make([]Language, 0, len(r.languages))
	for _, l := range r.languages {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i].ID < langs[j].ID })
	return langs
}

func (r *Resolver) registerDefaults() {
	r.register(Language{
		ID:   "javascript",
		Name: "JavaScript",
		Config: RuntimeConfig{
			Strategy:   "node",
			SourceFile: "main.js",
			RunCommand: []string{"node", "main.js"},
		},
	})

	r.register(Language{
		ID:   "typescript",
		Name: "TypeScript",
		Config: RuntimeConfig{
			Strategy:   "ts-node",
			SourceFile: "main.ts",
			RunCommand: []string{"node", "-r", "ts-node/register/transpile-only", "main.ts"},
		},
		Requires: CapabilityTSNode,
		Fallback: &RuntimeConfig{
			Strategy:       "tsc",
			SourceFile:     "main.ts",
			CompileCommand: []string{"tsc", "--target", "es2019", "--module", "commonjs", "main.ts"},
			RunCommand:     []string{"node", "main.js"},
		},
	})

	r.register(Language{
		ID:   "c",
		Name: "C",
		Config: RuntimeConfig{
			Strategy:       "gcc",
			SourceFile:     "main.c",
			CompileCommand: []string{"gcc", "main.c", "-O2", "-o", "main"},
			RunCommand:     []string{"./main"},
		},
	})

	r.register(Language{
		ID:   "cpp",
		Name: "C++",
		Config: RuntimeConfig{
			Strategy:       "g++",
			SourceFile:     "main.cpp",
			CompileCommand: []string{"g++", "main.cpp", "-O2", "-o", "main"},
			RunCommand:     []string{"./main"},
		},
	})
}
