/*
Package backup captures and restores point-in-time snapshots of the
stack's mutable state.

A snapshot is a timestamped directory containing one gzip tarball per
declared volume plus a copy of the configuration file, described by a
manifest. Capture is all-or-nothing: if any target fails to archive, the
partial directory is destroyed and ErrBackupIncomplete is returned, so a
snapshot that exists is always restorable.

Restore is the mirror image and equally strict: every archive named in
the snapshot must be present before anything is touched, and extraction
replaces volume contents wholesale rather than merging.

The manager works through an afero filesystem, so tests capture and
restore against an in-memory tree.
*/
package backup
