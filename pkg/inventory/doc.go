// Package inventory collects the running and latest-published identity
// of every component. Outdatedness is decided on content digests only;
// tags are treated as mutable pointers and never compared.
package inventory
