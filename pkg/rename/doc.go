// Package rename relocates Java-style namespaces in a source tree.
//
// A rule maps an old dotted prefix to a new one (org.a.b=org.x.y). Rewrite
// copies the selected files of a source tree into a destination tree, moving
// each file from the slash form of the old prefix to the slash form of the
// new one and replacing every dotted occurrence in its content. Rules are
// validated up front so that inverting them restores the original tree
// byte-for-byte.
package rename
