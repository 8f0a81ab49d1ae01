package structure

import (
	"path"

	"github.com/src-d/enry/v2"

	"issue-scout/internal/codehost"
)

// DominantLanguage names the most common language among source blobs in tree, or ""
// when none is recognized. Ties resolve to the language seen first.
func (a *Analyzer) DominantLanguage(tree []codehost.TreeEntry) string {
	counts := make(map[string]int)
	var order []string
	for _, node := range tree {
		if node.Type != codehost.EntryBlob || enry.IsVendor(node.Path) {
			continue
		}
		if _, ok := a.sourceExts[path.Ext(node.Path)]; !ok {
			continue
		}
		lang := enry.GetLanguage(path.Base(node.Path), nil)
		if lang == "" {
			continue
		}
		if counts[lang] == 0 {
			order = append(order, lang)
		}
		counts[lang]++
	}

	best, bestCount := "", 0
	for _, lang := range order {
		if counts[lang] > bestCount {
			best, bestCount = lang, counts[lang]
		}
	}
	return best
}
