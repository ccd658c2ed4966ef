package style

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/net/html"

	"github.com/conneroisu/devreload/internal/errors"
)

// ExtractClasses returns every class name used in class attributes of the
// given markup. Template actions inside an attribute are skipped.
func ExtractClasses(markup []byte) []string {
	set := make(map[string]bool)
	collectClasses(markup, set)
	return sortedKeys(set)
}

func collectClasses(markup []byte, set map[string]bool) {
	z := html.NewTokenizer(bytes.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail
			return
		case html.StartTagToken, html.SelfClosingTagToken:
			for {
				key, val, more := z.TagAttr()
				if string(key) == "class" {
					for _, class := range strings.Fields(string(val)) {
						if strings.Contains(class, "{{") || strings.Contains(class, "}}") {
							continue
						}
						set[class] = true
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

// ScanClasses walks root on fs and collects the classes used by every file
// whose extension is in exts.
func ScanClasses(fs afero.Fs, root string, exts []string) (map[string]bool, error) {
	set := make(map[string]bool)
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExtension(path, exts) {
			return nil
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		collectClasses(data, set)
		return nil
	})
	if err != nil {
		return nil, errors.IO("scan", root, err)
	}
	return set, nil
}

func hasExtension(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
