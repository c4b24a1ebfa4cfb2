package rename

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustWriteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func mustReadFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

var jdtRules = Rules{
	{Old: "org.eclipse.jdt.core.dom.rewrite", New: "org.example.proj.jdt.rewrite.imports"},
	{Old: "org.eclipse.jdt.internal.core.dom.rewrite.imports", New: "org.example.proj.jdt.internal.rewrite.imports"},
}

const importRewriteSource = "package org.eclipse.jdt.core.dom.rewrite;\n\nimport org.eclipse.jdt.internal.core.dom.rewrite.imports.ImportRewriteAnalyzer;\n\npublic final class ImportRewrite {}\n"

func writeJDTTree(t *testing.T, dir string) {
	t.Helper()
	mustWriteFile(t, dir, "org/eclipse/jdt/core/dom/rewrite/ImportRewrite.java", importRewriteSource)
	mustWriteFile(t, dir, "org/eclipse/jdt/internal/core/dom/rewrite/imports/ImportRewriteAnalyzer.java",
		"package org.eclipse.jdt.internal.core.dom.rewrite.imports;\n\nclass ImportRewriteAnalyzer {}\n")
	mustWriteFile(t, dir, "org/eclipse/jdt/core/dom/AST.java", "package org.eclipse.jdt.core.dom;\n")
}

func TestRewriteRelocatesPackages(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "original")
	dst := filepath.Join(root, "renamed")
	writeJDTTree(t, src)

	report, err := Rewrite(context.Background(), src, dst, jdtRules, Filter{}, Options{Workers: 2})
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Len(t, report.Files, 2)
	require.Equal(t, "org/example/proj/jdt/internal/rewrite/imports/ImportRewriteAnalyzer.java", report.Files[0].Destination)
	require.Equal(t, "org/example/proj/jdt/rewrite/imports/ImportRewrite.java", report.Files[1].Destination)
	require.True(t, report.Files[1].Written)

	got := mustReadFile(t, dst, "org/example/proj/jdt/rewrite/imports/ImportRewrite.java")
	require.Equal(t, "package org.example.proj.jdt.rewrite.imports;\n\nimport org.example.proj.jdt.internal.rewrite.imports.ImportRewriteAnalyzer;\n\npublic final class ImportRewrite {}\n", got)
	require.NoFileExists(t, filepath.Join(dst, "org", "eclipse", "jdt", "core", "dom", "AST.java"))
	require.Equal(t, importRewriteSource, mustReadFile(t, src, "org/eclipse/jdt/core/dom/rewrite/ImportRewrite.java"))
}

func TestRewriteIsIdempotent(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "original")
	dst := filepath.Join(root, "renamed")
	writeJDTTree(t, src)
	mustWriteFile(t, dst, "unrelated/Keep.java", "keep\n")

	_, err := Rewrite(context.Background(), src, dst, jdtRules, Filter{}, Options{})
	require.NoError(t, err)
	first := mustReadFile(t, dst, "org/example/proj/jdt/rewrite/imports/ImportRewrite.java")

	report, err := Rewrite(context.Background(), src, dst, jdtRules, Filter{}, Options{})
	require.NoError(t, err)
	for _, f := range report.Files {
		require.False(t, f.Written, f.Destination)
	}
	require.Equal(t, first, mustReadFile(t, dst, "org/example/proj/jdt/rewrite/imports/ImportRewrite.java"))
	require.Equal(t, "keep\n", mustReadFile(t, dst, "unrelated/Keep.java"))
}

func TestRewriteInvertRestoresOriginal(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "original")
	renamed := filepath.Join(root, "renamed")
	restored := filepath.Join(root, "restored")
	writeJDTTree(t, src)

	_, err := Rewrite(context.Background(), src, renamed, jdtRules, Filter{}, Options{})
	require.NoError(t, err)
	_, err = Rewrite(context.Background(), renamed, restored, jdtRules.Invert(), Filter{}, Options{})
	require.NoError(t, err)

	require.Equal(t, importRewriteSource, mustReadFile(t, restored, "org/eclipse/jdt/core/dom/rewrite/ImportRewrite.java"))
	require.Equal(t,
		mustReadFile(t, src, "org/eclipse/jdt/internal/core/dom/rewrite/imports/ImportRewriteAnalyzer.java"),
		mustReadFile(t, restored, "org/eclipse/jdt/internal/core/dom/rewrite/imports/ImportRewriteAnalyzer.java"))
}

func TestRewritePreservesFileMode(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	mustWriteFile(t, src, "org/a/run.sh", "org.a\n")
	require.NoError(t, os.Chmod(filepath.Join(src, "org", "a", "run.sh"), 0o755))

	_, err := Rewrite(context.Background(), src, dst, Rules{{Old: "org.a", New: "net.b"}}, Filter{}, Options{})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dst, "net", "b", "run.sh"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	require.Equal(t, "net.b\n", mustReadFile(t, dst, "net/b/run.sh"))
}

func TestRewriteRejectsCollidingDestinations(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	mustWriteFile(t, src, "org/a/X.java", "x\n")
	mustWriteFile(t, src, "net/b/X.java", "y\n")

	filter, err := NewFilter([]string{"**/*.java"})
	require.NoError(t, err)
	_, err = Rewrite(context.Background(), src, filepath.Join(root, "dst"), Rules{{Old: "org.a", New: "net.b"}}, filter, Options{})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrAmbiguousRule))
	require.Contains(t, err.Error(), "net/b/X.java")
}

func TestRewriteRejectsAmbiguousRulesBeforeWriting(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	mustWriteFile(t, src, "org/a/X.java", "x\n")

	_, err := Rewrite(context.Background(), src, dst, Rules{{Old: "org.a", New: "net.x"}, {Old: "org.a.b", New: "net.y"}}, Filter{}, Options{})
	require.True(t, errors.Is(err, ErrAmbiguousRule))
	require.NoDirExists(t, dst)
}
