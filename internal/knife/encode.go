package knife

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Marshal renders s as a knife settings file that Load reads back into the
// same values.
func Marshal(s ClientSettings) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes s to w in knife settings syntax. Optional fields holding their
// zero value are omitted.
func Encode(w io.Writer, s ClientSettings) error {
	lines := make([][2]string, 0, len(knownKeys))
	add := func(key, val string) {
		lines = append(lines, [2]string{key, val})
	}
	addOptional := func(key, val string) {
		if val != "" {
			add(key, quote(val))
		}
	}

	if s.LogLevel != "" {
		add(KeyLogLevel, ":"+s.LogLevel)
	}
	switch s.LogLocation {
	case LogStdout, "":
		add(KeyLogLocation, "STDOUT")
	case LogNone:
		add(KeyLogLocation, "nil")
	case LogFile:
		add(KeyLogLocation, quote(s.LogFile))
	default:
		return &ValidationError{Key: KeyLogLocation, Value: string(s.LogLocation), Msg: "unknown log destination"}
	}
	add(KeyNodeName, quote(s.NodeName))
	add(KeyClientKey, quote(s.ClientKey))
	add(KeyValidationClientName, quote(s.ValidationClientName))
	add(KeyValidationKey, quote(s.ValidationKey))
	add(KeyChefServerURL, quote(s.ChefServerURL))
	addOptional(KeySyntaxCheckCachePath, s.SyntaxCheckCachePath)
	switch s.SSLVerifyMode {
	case VerifyPeer, "":
		add(KeySSLVerifyMode, ":verify_peer")
	case VerifyNone:
		add(KeySSLVerifyMode, ":verify_none")
	default:
		return &ValidationError{Key: KeySSLVerifyMode, Value: string(s.SSLVerifyMode), Msg: "unknown verify mode"}
	}
	paths := make([]string, 0, len(s.CookbookPath))
	for _, p := range s.CookbookPath {
		paths = append(paths, quote(p))
	}
	add(KeyCookbookPath, "["+strings.Join(paths, ", ")+"]")
	addOptional(KeyCookbookCopyright, s.CookbookCopyright)
	addOptional(KeyCookbookEmail, s.CookbookEmail)
	version := s.DataBagEncryptVersion
	if version == 0 {
		version = DefaultDataBagEncryptVersion
	}
	add(KeyDataBagEncryptVersion, strconv.Itoa(version))

	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "%-24s %s\n", line[0], line[1]); err != nil {
			return fmt.Errorf("write %s: %w", line[0], err)
		}
	}
	return nil
}

// quote renders s as a single-quoted literal, which never interpolates.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}
