package patch

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

const importRewrite = "package org.eclipse.jdt.core.dom.rewrite;\n\npublic final class ImportRewrite {\n    foo();\n}\n"

func TestApplyTreeAppliesPatchesAndCopiesTheRest(t *testing.T) {
	root := t.TempDir()
	original := filepath.Join(root, "original")
	patches := filepath.Join(root, "patches")
	output := filepath.Join(root, "patched")

	target := "org/eclipse/jdt/core/dom/rewrite/ImportRewrite.java"
	mustWriteFile(t, original, target, importRewrite)
	mustWriteFile(t, original, "org/eclipse/jdt/internal/core/dom/rewrite/imports/Helper.java", "class Helper {}\n")

	patched := "package org.eclipse.jdt.core.dom.rewrite;\n\npublic final class ImportRewrite {\n    bar();\n}\n"
	text, err := Diff(target, importRewrite, patched)
	require.NoError(t, err)
	mustWriteFile(t, patches, target+Suffix, text)

	report, err := ApplyTree(context.Background(), original, patches, output, TreeOptions{Workers: 2})
	require.NoError(t, err)
	require.Equal(t, []Result{{Status: "M", Path: target}}, report.Results)
	require.Equal(t, 1, report.Copied)
	require.Empty(t, report.Failures)

	require.Equal(t, patched, mustReadFile(t, output, target))
	require.Equal(t, "class Helper {}\n", mustReadFile(t, output, "org/eclipse/jdt/internal/core/dom/rewrite/imports/Helper.java"))
	require.Equal(t, importRewrite, mustReadFile(t, original, target), "original tree must not be modified")
}

func TestApplyTreeAggregatesFailures(t *testing.T) {
	root := t.TempDir()
	original := filepath.Join(root, "original")
	patches := filepath.Join(root, "patches")
	output := filepath.Join(root, "patched")

	mustWriteFile(t, original, "Good.java", "a\nb\nc\n")
	mustWriteFile(t, original, "Conflict.java", "x\nbar();\ny\n")

	good, err := Diff("Good.java", "a\nb\nc\n", "a\nB\nc\n")
	require.NoError(t, err)
	mustWriteFile(t, patches, "Good.java.patch", good)

	conflict, err := Diff("Conflict.java", "x\nfoo();\ny\n", "x\nbaz();\ny\n")
	require.NoError(t, err)
	mustWriteFile(t, patches, "Conflict.java.patch", conflict)

	missing, err := Diff("Missing.java", "q\n", "r\n")
	require.NoError(t, err)
	mustWriteFile(t, patches, "Missing.java.patch", missing)

	mustWriteFile(t, patches, "Broken.java.patch", "@@ -1,4 +1,4 @@\n a\n")
	mustWriteFile(t, original, "Broken.java", "a\n")

	// Stale output from an earlier run must not survive.
	mustWriteFile(t, output, "Conflict.java", "stale\n")

	report, err := ApplyTree(context.Background(), original, patches, output, TreeOptions{})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPatchConflict))
	require.True(t, errors.Is(err, ErrMissingFile))
	require.True(t, errors.Is(err, ErrParse))

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	require.Len(t, runErr.Failures, 3)
	require.Equal(t, "Broken.java", runErr.Failures[0].RelativePath)
	require.Equal(t, "Conflict.java", runErr.Failures[1].RelativePath)
	require.Equal(t, 1, runErr.Failures[1].HunkNumber())
	require.Equal(t, "Conflict.java.patch", runErr.Failures[1].PatchPath)
	require.Equal(t, "Missing.java", runErr.Failures[2].RelativePath)
	require.Contains(t, err.Error(), "Broken.java, Conflict.java, Missing.java")

	require.NotNil(t, report)
	require.Equal(t, []Result{{Status: "M", Path: "Good.java"}}, report.Results)
	require.Equal(t, "a\nB\nc\n", mustReadFile(t, output, "Good.java"))
	require.NoFileExists(t, filepath.Join(output, "Conflict.java"))
	require.NoFileExists(t, filepath.Join(output, "Broken.java"))
}

func TestApplyTreeHandlesAddAndDelete(t *testing.T) {
	root := t.TempDir()
	original := filepath.Join(root, "original")
	patches := filepath.Join(root, "patches")
	output := filepath.Join(root, "patched")

	mustWriteFile(t, original, "old/Gone.java", "gone\n")
	added, err := DiffAdded("new/Fresh.java", "fresh\n")
	require.NoError(t, err)
	mustWriteFile(t, patches, "new/Fresh.java.patch", added)
	deleted, err := DiffDeleted("old/Gone.java", "gone\n")
	require.NoError(t, err)
	mustWriteFile(t, patches, "old/Gone.java.patch", deleted)

	report, err := ApplyTree(context.Background(), original, patches, output, TreeOptions{})
	require.NoError(t, err)
	require.Equal(t, []Result{{Status: "A", Path: "new/Fresh.java"}, {Status: "D", Path: "old/Gone.java"}}, report.Results)
	require.Equal(t, "fresh\n", mustReadFile(t, output, "new/Fresh.java"))
	require.NoFileExists(t, filepath.Join(output, "old", "Gone.java"))
}

func TestApplyTreeRejectsOverlappingOutput(t *testing.T) {
	root := t.TempDir()
	original := filepath.Join(root, "original")
	mustWriteFile(t, original, "A.java", "a\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "patches"), 0o755))

	_, err := ApplyTree(context.Background(), original, filepath.Join(root, "patches"), filepath.Join(original, "out"), TreeOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "overlaps")
	require.FileExists(t, filepath.Join(original, "A.java"))
}

func TestGenerateTreeRoundTrip(t *testing.T) {
	root := t.TempDir()
	original := filepath.Join(root, "original")
	patches := filepath.Join(root, "patches")
	patched := filepath.Join(root, "patched")
	regenerated := filepath.Join(root, "regenerated")

	target := "org/eclipse/jdt/core/dom/rewrite/ImportRewrite.java"
	mustWriteFile(t, original, target, importRewrite)
	mustWriteFile(t, original, "Untouched.java", "same\n")

	text, err := Diff(target, importRewrite, importRewrite+"// patched\n")
	require.NoError(t, err)
	mustWriteFile(t, patches, target+Suffix, text)

	_, err = ApplyTree(context.Background(), original, patches, patched, TreeOptions{})
	require.NoError(t, err)

	report, err := GenerateTree(context.Background(), original, patched, regenerated, TreeOptions{})
	require.NoError(t, err)
	require.Equal(t, []Result{{Status: "M", Path: target}}, report.Results)
	require.Equal(t, text, mustReadFile(t, regenerated, target+Suffix))
	require.NoFileExists(t, filepath.Join(regenerated, "Untouched.java"+Suffix))
}

func TestGenerateTreeRemovesStalePatches(t *testing.T) {
	root := t.TempDir()
	original := filepath.Join(root, "original")
	modified := filepath.Join(root, "modified")
	output := filepath.Join(root, "patches")

	mustWriteFile(t, original, "A.java", "a\n")
	mustWriteFile(t, modified, "A.java", "a\n")
	mustWriteFile(t, modified, "B.java", "b\n")
	mustWriteFile(t, output, "A.java.patch", "stale")
	mustWriteFile(t, output, "README", "keep me")

	report, err := GenerateTree(context.Background(), original, modified, output, TreeOptions{Workers: 1})
	require.NoError(t, err)
	require.Equal(t, []Result{{Status: "A", Path: "B.java"}}, report.Results)
	require.NoFileExists(t, filepath.Join(output, "A.java.patch"))
	require.FileExists(t, filepath.Join(output, "B.java.patch"))
	require.FileExists(t, filepath.Join(output, "README"))
}

func TestLoadPatchSetDerivesTargets(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, dir, "b/Two.java.patch", "@@ -1 +1 @@\n-a\n+b\n")
	mustWriteFile(t, dir, "a/One.java.patch", "@@ -1 +1 @@\n-a\n+b\n")
	mustWriteFile(t, dir, "notes.txt", "ignored")

	set, err := LoadPatchSet(dir)
	require.NoError(t, err)
	require.Len(t, set, 2)
	require.Equal(t, "a/One.java", set[0].Target)
	require.Equal(t, "a/One.java.patch", set[0].Source)
	require.Equal(t, "b/Two.java", set[1].Target)
}

func TestGenerateTreeKeepsEmptyFileAdditionsAndDeletions(t *testing.T) {
	root := t.TempDir()
	original := filepath.Join(root, "original")
	modified := filepath.Join(root, "modified")
	patches := filepath.Join(root, "patches")
	output := filepath.Join(root, "out")

	mustWriteFile(t, original, "Kept.java", "kept\n")
	mustWriteFile(t, original, "Gone.txt", "")
	mustWriteFile(t, modified, "Kept.java", "kept\n")
	mustWriteFile(t, modified, "Empty.java", "")

	report, err := GenerateTree(context.Background(), original, modified, patches, TreeOptions{})
	require.NoError(t, err)
	require.Equal(t, []Result{{Status: "A", Path: "Empty.java"}, {Status: "D", Path: "Gone.txt"}}, report.Results)
	require.Equal(t, "--- /dev/null\n+++ b/Empty.java\n", mustReadFile(t, patches, "Empty.java"+Suffix))
	require.Equal(t, "--- a/Gone.txt\n+++ /dev/null\n", mustReadFile(t, patches, "Gone.txt"+Suffix))

	applied, err := ApplyTree(context.Background(), original, patches, output, TreeOptions{})
	require.NoError(t, err)
	require.Equal(t, report.Results, applied.Results)
	require.FileExists(t, filepath.Join(output, "Empty.java"))
	require.Empty(t, mustReadFile(t, output, "Empty.java"))
	require.NoFileExists(t, filepath.Join(output, "Gone.txt"))
	require.Equal(t, "kept\n", mustReadFile(t, output, "Kept.java"))
}
