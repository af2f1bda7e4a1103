package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/patchpilot/internal/model"
)

// DefaultMaxFileBytes caps the size of a file the scanner will read.
const DefaultMaxFileBytes = 1 << 20

// DefaultExtensions are the source file types analyzed by default.
var DefaultExtensions = []string{
	".java", ".js", ".ts", ".jsx", ".tsx", ".py", ".go", ".rb",
	".php", ".cs", ".cpp", ".c", ".h", ".swift", ".kt", ".rs",
}

// skipDirs are never descended into, whatever their contents.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"vendor":       true,
	"target":       true,
	"build":        true,
	"dist":         true,
}

// Options controls which files a directory scan reads.
type Options struct {
	Extensions   []string // overrides DefaultExtensions when set
	MaxFileBytes int64    // 0 means DefaultMaxFileBytes
}

// Result holds the findings of a directory scan.
type Result struct {
	Root         string          `json:"root"`
	FilesScanned []string        `json:"files_scanned"`
	Findings     []model.Finding `json:"findings"`
	Skipped      []string        `json:"skipped,omitempty"`
}

func (o Options) extensionSet() map[string]bool {
	exts := o.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}

func (o Options) maxBytes() int64 {
	if o.MaxFileBytes > 0 {
		return o.MaxFileBytes
	}
	return DefaultMaxFileBytes
}

// IsAnalyzable reports whether a path (relative to the scan root) would be
// scanned under the default options.
func IsAnalyzable(rel string) bool {
	return Options{}.eligible(rel, Options{}.extensionSet())
}

// Matches reports whether a path relative to the scan root would be scanned
// under o, ignoring size.
func (o Options) Matches(rel string) bool {
	return o.eligible(rel, o.extensionSet())
}

// SkipsDir reports whether directories with this name are never descended.
func SkipsDir(name string) bool {
	return skipDirs[name]
}

func (o Options) eligible(rel string, exts map[string]bool) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if skipDirs[part] {
			return false
		}
	}
	return exts[strings.ToLower(filepath.Ext(rel))]
}

// Collect walks root and returns the slash-separated relative paths of all
// eligible files in lexical order. Oversized files are reported separately.
func Collect(root string, opts Options) (files, oversized []string, err error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("scan root %s is not a directory", root)
	}

	exts := opts.extensionSet()
	limit := opts.maxBytes()

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			slog.Debug("walk error", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !opts.eligible(rel, exts) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr == nil && info.Size() > limit {
			oversized = append(oversized, rel)
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, oversized, nil
}

// ScanDir analyzes every eligible file under root. Files that cannot be read
// are logged and skipped; they never fail the scan. A cancelled context stops
// the scan between files.
func (s *Scanner) ScanDir(ctx context.Context, root string, opts Options) (*Result, error) {
	files, oversized, err := Collect(root, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{Root: root}
	for _, rel := range oversized {
		slog.Warn("file exceeds scan size limit, skipping", "file", rel)
		result.Skipped = append(result.Skipped, rel)
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			slog.Error("read file", "file", rel, "error", err)
			result.Skipped = append(result.Skipped, rel)
			continue
		}
		slog.Debug("analyzing file", "file", rel)
		result.FilesScanned = append(result.FilesScanned, rel)
		result.Findings = append(result.Findings, s.Analyze(rel, string(data))...)
	}

	return result, nil
}
