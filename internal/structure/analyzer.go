// Package structure turns a repository tree into a bounded, priority-ordered list of
// files worth scanning.
package structure

import (
	"path"
	"sort"
	"strings"

	"issue-scout/internal/codehost"
	"issue-scout/internal/shared/telemetry"
)

// Priority buckets, lowest number first.
const (
	PriorityPrimary = 1
	PriorityConfig  = 2
	PriorityOther   = 3
)

// Category labels a categorized file.
type Category string

const (
	CategorySource Category = "source"
	CategoryConfig Category = "config"
	CategoryTest   Category = "test"
)

// CategorizedFile is a blob selected for scanning.
type CategorizedFile struct {
	Path     string   `json:"path"`
	URL      string   `json:"url"`
	Priority int      `json:"priority"`
	Category Category `json:"category"`
}

// Structure is the coarse layout of a repository.
type Structure struct {
	RootDirs    []string
	TestDirs    []string
	ConfigFiles []string
}

// Analyzer applies a Heuristics table set. It holds no other state and is safe for
// concurrent use.
type Analyzer struct {
	h           Heuristics
	sourceDirs  map[string]struct{}
	configFiles map[string]struct{}
	sourceExts  map[string]struct{}
}

// NewAnalyzer builds an Analyzer over h.
func NewAnalyzer(h Heuristics) *Analyzer {
	return &Analyzer{
		h:           h,
		sourceDirs:  toSet(h.SourceDirs),
		configFiles: toSet(h.ConfigFiles),
		sourceExts:  toSet(h.SourceExtensions),
	}
}

// Limits returns the configured per-priority caps.
func (a *Analyzer) Limits() Limits {
	return a.h.Limits
}

// AnalyzeStructure finds source roots, test directories and config files.
func (a *Analyzer) AnalyzeStructure(tree []codehost.TreeEntry) Structure {
	var s Structure
	seenRoots := make(map[string]struct{})
	seenTests := make(map[string]struct{})
	for _, node := range tree {
		switch node.Type {
		case codehost.EntryTree:
			first := firstSegment(node.Path)
			if _, ok := a.sourceDirs[first]; ok {
				if _, dup := seenRoots[first]; !dup {
					seenRoots[first] = struct{}{}
					s.RootDirs = append(s.RootDirs, first)
				}
			}
			if a.containsTestToken(node.Path) {
				if _, dup := seenTests[node.Path]; !dup {
					seenTests[node.Path] = struct{}{}
					s.TestDirs = append(s.TestDirs, node.Path)
				}
			}
		case codehost.EntryBlob:
			if _, ok := a.configFiles[path.Base(node.Path)]; ok {
				s.ConfigFiles = append(s.ConfigFiles, node.Path)
			}
		}
	}
	return s
}

// ShouldIgnorePath reports whether p equals, or sits under, a default or custom ignored path.
func (a *Analyzer) ShouldIgnorePath(p string, custom []string) bool {
	for _, ignored := range a.h.IgnoredPaths {
		if matchesIgnored(p, ignored) {
			return true
		}
	}
	for _, ignored := range custom {
		if matchesIgnored(p, ignored) {
			return true
		}
	}
	return false
}

// CategorizeFiles assigns priorities to every scannable blob, stably sorted by priority.
func (a *Analyzer) CategorizeFiles(tree []codehost.TreeEntry, s Structure, custom []string) []CategorizedFile {
	roots := toSet(s.RootDirs)
	configs := toSet(s.ConfigFiles)

	var out []CategorizedFile
	for _, node := range tree {
		if node.Type != codehost.EntryBlob {
			continue
		}
		if a.ShouldIgnorePath(node.Path, custom) {
			continue
		}
		_, isSource := a.sourceExts[path.Ext(node.Path)]
		_, inRoot := roots[firstSegment(node.Path)]
		_, isConfig := configs[node.Path]

		file := CategorizedFile{Path: node.Path, URL: node.URL}
		switch {
		case inRoot && isSource:
			file.Priority, file.Category = PriorityPrimary, CategorySource
		case isConfig:
			file.Priority, file.Category = PriorityConfig, CategoryConfig
		case isSource && underAny(node.Path, s.TestDirs):
			file.Priority, file.Category = PriorityOther, CategoryTest
		case isSource:
			file.Priority, file.Category = PriorityOther, CategorySource
		default:
			continue
		}
		out = append(out, file)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// ApplyLimits truncates each priority bucket independently and concatenates them in
// priority order. Applying it twice with the same limits is a no-op.
func (a *Analyzer) ApplyLimits(files []CategorizedFile, limits Limits) []CategorizedFile {
	caps := map[int]int{
		PriorityPrimary: limits.Primary,
		PriorityConfig:  limits.Config,
		PriorityOther:   limits.Other,
	}
	buckets := make(map[int][]CategorizedFile, len(caps))
	for _, f := range files {
		if len(buckets[f.Priority]) < caps[f.Priority] {
			buckets[f.Priority] = append(buckets[f.Priority], f)
		}
	}
	out := make([]CategorizedFile, 0, len(buckets[PriorityPrimary])+len(buckets[PriorityConfig])+len(buckets[PriorityOther]))
	out = append(out, buckets[PriorityPrimary]...)
	out = append(out, buckets[PriorityConfig]...)
	out = append(out, buckets[PriorityOther]...)
	return out
}

// Plan is the result of running the full analysis over a tree.
type Plan struct {
	Structure Structure
	// Categorized holds every candidate before caps; Files is the capped scan list.
	Categorized []CategorizedFile
	Files       []CategorizedFile
}

// CountByPriority returns the number of files in each bucket.
func CountByPriority(files []CategorizedFile) (primary, config, other int) {
	for _, f := range files {
		switch f.Priority {
		case PriorityPrimary:
			primary++
		case PriorityConfig:
			config++
		default:
			other++
		}
	}
	return primary, config, other
}

// BuildPlan analyzes, categorizes and caps tree in one call.
func (a *Analyzer) BuildPlan(tree []codehost.TreeEntry, custom []string) Plan {
	s := a.AnalyzeStructure(tree)
	categorized := a.CategorizeFiles(tree, s, custom)
	files := a.ApplyLimits(categorized, a.h.Limits)

	p1, p2, p3 := CountByPriority(categorized)
	telemetry.Info("structure.plan", map[string]any{
		"root_dirs":    len(s.RootDirs),
		"test_dirs":    len(s.TestDirs),
		"config_files": len(s.ConfigFiles),
		"categorized":  len(categorized),
		"limited":      len(files),
		"priority1":    p1,
		"priority2":    p2,
		"priority3":    p3,
	})
	return Plan{Structure: s, Categorized: categorized, Files: files}
}

func (a *Analyzer) containsTestToken(p string) bool {
	for _, token := range a.h.TestDirs {
		if token != "" && strings.Contains(p, token) {
			return true
		}
	}
	return false
}

func underAny(p string, dirs []string) bool {
	for _, d := range dirs {
		if d != "" && strings.Contains(p, d) {
			return true
		}
	}
	return false
}

func matchesIgnored(p, ignored string) bool {
	ignored = strings.Trim(strings.TrimSpace(ignored), "/")
	if ignored == "" {
		return false
	}
	return p == ignored || strings.HasPrefix(p, ignored+"/")
}

func firstSegment(p string) string {
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
