package tools

// skipDirs names directories the walking tools (grep, find_files, tree)
// ignore during traversal: version control, dependency trees, and build
// output that are never useful for code search.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"__pycache__":  true,
	"dist":         true,
	"target":       true,
	".vtcode":      true,
}

// shouldSkipDir reports whether a directory should be skipped during file traversal.
func shouldSkipDir(name string) bool {
	return skipDirs[name]
}
