// Package classifier decides whether a proposed shell argv is read-only
// enough to run without human approval. It is a pure function of its
// inputs: no I/O, no filesystem access, deterministic.
package classifier

import (
	"strings"
)

// TrustedPattern is a user-pinned argv pattern from config. A pattern
// matches exactly, or — when its last element is "*" — matches any argv
// sharing its prefix.
type TrustedPattern []string

func (p TrustedPattern) matches(argv []string) bool {
	if len(p) == 0 {
		return false
	}
	if p[len(p)-1] == "*" {
		prefix := p[:len(p)-1]
		if len(argv) < len(prefix) {
			return false
		}
		for i, want := range prefix {
			if argv[i] != want {
				return false
			}
		}
		return true
	}
	if len(p) != len(argv) {
		return false
	}
	for i, want := range p {
		if argv[i] != want {
			return false
		}
	}
	return true
}

var unconditionalReads = map[string]bool{
	"cat": true, "cd": true, "echo": true, "false": true, "grep": true,
	"head": true, "ls": true, "nl": true, "pwd": true, "tail": true,
	"true": true, "wc": true, "which": true,
}

var findUnsafeFlags = map[string]bool{
	"-exec": true, "-execdir": true, "-ok": true, "-okdir": true,
	"-delete": true, "-fls": true, "-fprint": true, "-fprint0": true,
	"-fprintf": true,
}

var rgUnsafeFlags = map[string]bool{
	"--search-zip": true, "-z": true,
}

var rgUnsafeValuePrefixes = []string{"--pre", "--hostname-bin"}

// curlUnsafeExactFlags disqualifies a curl invocation outright: anything
// that can upload data, read arbitrary files into the request, write
// headers/traces/cookies to disk, carry credentials, or switch the
// request onto a non-GET/HEAD method family. -X/--request and -H/--header
// are handled separately below since their safety depends on the value
// that follows them, not just their presence.
var curlUnsafeExactFlags = map[string]bool{
	"-d": true, "--data": true, "--data-raw": true, "--data-binary": true,
	"--data-ascii": true, "--data-urlencode": true,
	"-F": true, "--form": true, "--form-string": true,
	"-T": true, "--upload-file": true, "--upload": true,
	"--config": true, "-K": true,
	"--dump-header": true, "-D": true,
	"--trace": true, "--trace-ascii": true, "--trace-time": true,
	"--netrc-file": true,
	"-u": true, "--user": true, "--oauth2-bearer": true,
	"--create-dirs": true, "--ftp-create-dirs": true,
	"-c": true, "--cookie-jar": true,
	"--ftp-method": true, "--ftp-pasv": true, "--ftp-port": true,
	"--mail-from": true, "--mail-rcpt": true,
	"-I": true, "--head": true,
	"--post301": true, "--post302": true, "--post303": true,
	"-e": true, "--referer": true,
	"-A": true, "--user-agent": true,
}

// curlUnsafePrefixes catches option families where any option sharing the
// prefix is dangerous (proxy credentials, cookie jars, TLS client
// material, and the alternate-auth-scheme flags).
var curlUnsafePrefixes = []string{
	"--proxy-", "--cookie", "--cert", "--key", "--pass", "--cacert",
	"--capath", "--pinnedpubkey", "--engine",
	"--basic", "--digest", "--ntlm", "--negotiate", "--anyauth",
}

// dangerousCurlHeaders is the lower-cased header-name set that makes a
// -H/--header value unsafe; a header with no colon at all is always
// treated as dangerous since its name can't be determined.
var dangerousCurlHeaders = map[string]bool{
	"authorization": true, "cookie": true, "set-cookie": true,
	"x-api-key": true, "x-auth-token": true, "x-access-token": true,
	"x-secret-key": true, "api-key": true, "apikey": true, "auth": true,
	"authentication": true, "bearer": true, "token": true,
	"x-csrf-token": true, "x-xsrf-token": true, "proxy-authorization": true,
}

// IsKnownSafe reports whether argv is a known-safe, read-only command.
func IsKnownSafe(argv []string, userTrusted []TrustedPattern) bool {
	if len(argv) == 0 {
		return false
	}
	for _, p := range userTrusted {
		if p.matches(argv) {
			return true
		}
	}
	return isAllowListed(argv, userTrusted)
}

func isAllowListed(argv []string, userTrusted []TrustedPattern) bool {
	prog := argv[0]
	args := argv[1:]

	switch prog {
	case "cat", "cd", "echo", "false", "grep", "head", "ls", "nl", "pwd", "tail", "true", "wc", "which":
		return true
	case "find":
		return safeFind(args)
	case "rg":
		return safeRipgrep(args)
	case "curl":
		return safeCurl(args)
	case "git":
		return safeGit(args)
	case "cargo":
		return safeCargo(args)
	case "sed":
		return safeSed(args)
	case "bash":
		return safeBashLc(argv, userTrusted)
	default:
		return false
	}
}

func safeFind(args []string) bool {
	for _, a := range args {
		if findUnsafeFlags[a] {
			return false
		}
	}
	return true
}

func safeRipgrep(args []string) bool {
	for _, a := range args {
		if rgUnsafeFlags[a] {
			return false
		}
		for _, prefix := range rgUnsafeValuePrefixes {
			if a == prefix || strings.HasPrefix(a, prefix+"=") {
				return false
			}
		}
	}
	return true
}

func safeGit(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "branch", "status", "log", "diff", "show":
		return true
	default:
		return false
	}
}

func safeCargo(args []string) bool {
	return len(args) > 0 && args[0] == "check"
}

// safeSed only allows the single-purpose "print this line range" form:
// sed -n <N|N,M>p FILE, with a non-empty file argument. Every other sed
// invocation — including the same range spec read from stdin — is
// disallowed, since sed's substitute/write commands can mutate files.
func safeSed(args []string) bool {
	if len(args) != 3 {
		return false
	}
	if args[0] != "-n" {
		return false
	}
	if !isValidSedNArg(args[1]) {
		return false
	}
	return args[2] != ""
}

// isValidSedNArg matches /^(\d+,)?\d+p$/.
func isValidSedNArg(s string) bool {
	core, ok := strings.CutSuffix(s, "p")
	if !ok {
		return false
	}
	parts := strings.Split(core, ",")
	switch len(parts) {
	case 1:
		return isASCIIDigits(parts[0])
	case 2:
		return isASCIIDigits(parts[0]) && isASCIIDigits(parts[1])
	default:
		return false
	}
}

func isASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// safeCurl allows only GET/HEAD-style downloads: any data-upload, config,
// trace, credential, proxy, TLS-material, or auth-scheme flag disqualifies
// the invocation, -X/--request is only safe with a GET or HEAD method, and
// -H/--header is only safe when its header name isn't in the
// dangerous-header set (or missing a colon entirely).
func safeCurl(args []string) bool {
	for i, a := range args {
		name, value, hasValue := a, "", false
		if eq := strings.IndexByte(a, '='); eq >= 0 {
			name, value, hasValue = a[:eq], a[eq+1:], true
		}

		switch name {
		case "-X", "--request":
			method := value
			if !hasValue && i+1 < len(args) {
				method = args[i+1]
			}
			if !strings.EqualFold(method, "GET") && !strings.EqualFold(method, "HEAD") {
				return false
			}
			continue
		case "-H", "--header":
			header := value
			if !hasValue && i+1 < len(args) {
				header = args[i+1]
			}
			if curlHeaderIsDangerous(header) {
				return false
			}
			continue
		}

		if curlUnsafeExactFlags[name] {
			return false
		}
		for _, prefix := range curlUnsafePrefixes {
			if strings.HasPrefix(name, prefix) {
				return false
			}
		}
	}
	return true
}

func curlHeaderIsDangerous(header string) bool {
	colon := strings.IndexByte(header, ':')
	if colon < 0 {
		return true
	}
	name := strings.ToLower(strings.TrimSpace(header[:colon]))
	return dangerousCurlHeaders[name]
}

func safeBashLc(argv []string, userTrusted []TrustedPattern) bool {
	if len(argv) != 3 || argv[1] != "-lc" {
		return false
	}
	return walkBashScript(argv[2], userTrusted)
}
