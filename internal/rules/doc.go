// Package rules holds the concrete compatibility rewrites a rule table can
// name: type renames, facade redirection, member replacement, detect-only
// finders, the missing-reference finder and platform scope retargeting.
//
// Every rule here is idempotent. Replacements are checked against the host
// catalog during the pass; a target the host does not provide turns the
// site Fatal and leaves it untouched.
package rules
