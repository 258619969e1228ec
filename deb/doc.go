// Package deb reads Debian binary packages and renders APT index text.
//
// It is a pure Go stand-in for the parts of dpkg-scanpackages and
// apt-ftparchive the mirror needs, so a repository can be indexed on hosts
// without the Debian tooling installed.
//
// # Reading packages
//
// ReadControl walks the ar archive of a .deb and returns the raw control file
// found in its control.tar member, which may be stored plain or compressed
// with gzip, xz or zstd. Sum computes the size and digests APT expects, and
// Stanza joins both into a Packages entry. ScanFile does all three for a file
// on disk.
//
// # Release files
//
// RenderRelease writes the fields of a suite Release file followed by the
// MD5Sum, SHA1 and SHA256 lists of its index files.
package deb
