// Package patch parses and applies unified diffs and generates them from a
// pair of directory trees.
//
// A patch set is a directory of "<path>.patch" files, each a unified diff for
// the file at <path> in the original tree. ApplyTree materialises the patched
// tree, GenerateTree regenerates the patch set after the patched copy has been
// edited. ApplyToMemory works on an in-memory map of files, which keeps tests
// and tooling that never touch the disk simple.
package patch
