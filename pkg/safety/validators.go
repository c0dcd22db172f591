// Copyright 2025 Conductor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// CriticalPaths is the configurable set of paths rm/chmod may never
// touch. Grounded on commandtool.DefaultDeniedPatterns' intent, but
// expressed as a path set rather than a regex list since the
// filesystem category targets arguments, not the whole command line.
var CriticalPaths = []string{"/", "/etc", "/usr", "/bin", "/sbin", "/boot", "/root"}

// evalPattern flags dynamic execution over untrusted input within a
// shell command, grounded on commandtool.DefaultDeniedPatterns'
// `eval\s*\$` entry.
var evalPattern = regexp.MustCompile(`\beval\s`)

// recursiveFlagPattern matches rm's recursive flags in their long and short
// forms, grounded on commandtool.DefaultDeniedPatterns' rm -rf entry.
var recursiveFlagPattern = regexp.MustCompile(`(^|\s)-([a-zA-Z]*r[a-zA-Z]*f[a-zA-Z]*|[a-zA-Z]*f[a-zA-Z]*r[a-zA-Z]*|-recursive)(\s|$)`)

// worldWritableChmodPattern matches chmod 777 and equivalent octal or
// symbolic world-writable modes, grounded on
// commandtool.DefaultDeniedPatterns' `chmod\s+777` entry.
var worldWritableChmodPattern = regexp.MustCompile(`\b(777|a\+rwx|o\+w)\b`)

// allowedFetchDomains is the default curl/wget domain allowlist
// (package registries), per spec.md §4.5.
var allowedFetchDomains = []string{
	"registry.npmjs.org",
	"pypi.org",
	"files.pythonhosted.org",
	"proxy.golang.org",
	"sum.golang.org",
	"crates.io",
	"static.crates.io",
	"github.com",
	"raw.githubusercontent.com",
}

// validateShell implements the Shell category: when invoked as
// `bash -c "INNER"` (or sh/zsh equivalents), the inner command is
// extracted and recursively revalidated through the same registry.
func validateShell(cmd Command, registry *Registry) Result {
	if evalPattern.MatchString(cmd.FullCommand) {
		return deny("shell command performs dynamic execution (eval) over untrusted input")
	}

	inner, ok := extractDashC(cmd.Args)
	if !ok {
		return allow()
	}

	innerCmd := ParseCommand(inner)
	if innerCmd.Name == "" {
		return allow()
	}
	return registry.Validate(innerCmd)
}

// extractDashC finds "-c" in args and returns the command string that
// follows it, with one pair of surrounding quotes removed.
func extractDashC(args []string) (string, bool) {
	for i, a := range args {
		if a == "-c" && i+1 < len(args) {
			inner := strings.Join(args[i+1:], " ")
			if len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') && inner[len(inner)-1] == inner[0] {
				inner = inner[1 : len(inner)-1]
			}
			return inner, true
		}
	}
	return "", false
}

// validateFilesystemDestructive implements rm's policy: block
// destructive recursive operations against critical paths.
func validateFilesystemDestructive(cmd Command, _ *Registry) Result {
	recursive := recursiveFlagPattern.MatchString(" " + joinArgs(cmd.Args) + " ")
	for _, arg := range cmd.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		for _, critical := range CriticalPaths {
			if arg == critical || strings.HasPrefix(arg, critical+"/") {
				if recursive || critical == "/" {
					return deny(fmt.Sprintf("rm targets critical path %q", critical))
				}
			}
		}
	}
	return allow()
}

// validateChmod blocks world-writable permission changes, especially
// recursive ones.
func validateChmod(cmd Command, _ *Registry) Result {
	full := joinArgs(cmd.Args)
	if worldWritableChmodPattern.MatchString(full) {
		recursive := false
		for _, a := range cmd.Args {
			if a == "-R" || a == "--recursive" {
				recursive = true
			}
		}
		if recursive {
			return deny("chmod applies a world-writable mode recursively")
		}
		return deny("chmod applies a world-writable mode")
	}
	return allow()
}

// validateProcessSignal blocks mass-kill targets (PID -1 or
// equivalent).
func validateProcessSignal(cmd Command, _ *Registry) Result {
	for _, a := range cmd.Args {
		if a == "-1" || a == "-- -1" {
			return deny("signal targets all processes (pid -1)")
		}
	}
	if cmd.Name == "killall" || cmd.Name == "pkill" {
		for _, a := range cmd.Args {
			if a == "-9" {
				continue
			}
			if a == "*" || a == ".*" || a == "-e" {
				return deny(fmt.Sprintf("%s with a wildcard target is a mass-kill", cmd.Name))
			}
		}
	}
	return allow()
}

// validateGit blocks credential-storage configuration and
// history-rewriting pushes.
func validateGit(cmd Command, _ *Registry) Result {
	full := joinArgs(cmd.Args)
	if containsAny(full, "credential.helper=store", "credential.helper store") {
		return deny("git command configures plaintext credential storage")
	}
	if strings.Contains(full, "push") && containsAny(full, "--force", "-f ", "+refs/") {
		return deny("git push rewrites remote history (force push)")
	}
	return allow()
}

// validateDB blocks database/user drops and global flushes across
// psql/mysql/redis-cli/mongosh.
func validateDB(cmd Command, _ *Registry) Result {
	full := strings.ToUpper(joinArgs(cmd.Args))
	if containsAny(full, "DROP DATABASE", "DROP USER", "DROP ROLE") {
		return deny("database command drops a database, user, or role")
	}
	if containsAny(strings.ToLower(full), "flushall", "flushdb") {
		return deny("database command performs a global flush")
	}
	return allow()
}

// validateNetworkFetch allows curl/wget only against an explicit
// domain allowlist and blocks pipes into a shell.
func validateNetworkFetch(cmd Command, _ *Registry) Result {
	full := cmd.FullCommand
	if containsAny(full, "| sh", "|sh", "| bash", "|bash", "| zsh") {
		return deny(fmt.Sprintf("%s output is piped into a shell", cmd.Name))
	}

	for _, arg := range cmd.Args {
		if !looksLikeURL(arg) {
			continue
		}
		if !domainAllowed(arg) {
			return deny(fmt.Sprintf("%s target is not in the package-registry allowlist: %s", cmd.Name, arg))
		}
	}
	return allow()
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func domainAllowed(rawURL string) bool {
	host := extractHost(rawURL)
	for _, allowed := range allowedFetchDomains {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func extractHost(rawURL string) string {
	s := strings.TrimPrefix(rawURL, "https://")
	s = strings.TrimPrefix(s, "http://")
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.Index(s, "@"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

// validateBlockedEntirely denies nc/netcat/ssh/scp/sudo unconditionally.
func validateBlockedEntirely(cmd Command, _ *Registry) Result {
	return deny(fmt.Sprintf("%s is blocked entirely", cmd.Name))
}

// validateRsync allows local-only transfers, blocking any remote
// destination (host: prefix or rsync:// scheme).
func validateRsync(cmd Command, _ *Registry) Result {
	for _, arg := range cmd.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		if strings.HasPrefix(arg, "rsync://") || isRemoteSpec(arg) {
			return deny("rsync targets a remote destination")
		}
	}
	return allow()
}

// isRemoteSpec detects rsync's HOST:PATH / USER@HOST:PATH shorthand,
// taking care not to mistake a Windows-style or local path for one.
func isRemoteSpec(arg string) bool {
	idx := strings.Index(arg, ":")
	if idx <= 0 {
		return false
	}
	// A single-letter prefix before ':' is a Windows drive, not a host.
	if idx == 1 {
		return false
	}
	return !strings.Contains(arg[:idx], "/")
}
