/*
Package pattern implements the path matching rules shared by filesystem
publishers.

Subscription paths may carry two wildcard tokens: % matches within a single
path segment and %% matches across segments. The familiar * and ** are
accepted as synonyms. Globs are used in two ways:

  - Translate/Compile turn a glob into an anchored regular expression that is
    evaluated against event paths.
  - Expand resolves a glob against the filesystem (via doublestar) into the
    set of directories and files that currently exist. Expansion happens when
    a publisher is configured, not per event, so directories created later
    are only picked up by the next configure.

An event path fires an inclusion when it is equal to or below one of the
resolved paths (Contains). An ExclusionSet is consulted afterwards and always
wins over inclusion.
*/
package pattern
