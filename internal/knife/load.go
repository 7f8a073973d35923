package knife

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

// Load reads the settings file at path and returns the validated settings.
// Relative paths inside the file resolve against the file's directory.
func Load(path string) (ClientSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ClientSettings{}, fmt.Errorf("%w: %w", ErrFileNotFound, err)
		}
		return ClientSettings{}, fmt.Errorf("read settings file: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return ClientSettings{}, fmt.Errorf("resolve settings path: %w", err)
	}
	return Parse(data, filepath.Dir(abs))
}

// LoadReader reads settings from r, resolving relative paths against baseDir.
func LoadReader(r io.Reader, baseDir string) (ClientSettings, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ClientSettings{}, fmt.Errorf("read settings: %w", err)
	}
	return Parse(data, baseDir)
}

// Parse parses settings source data. baseDir is made absolute before use.
func Parse(data []byte, baseDir string) (ClientSettings, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return ClientSettings{}, fmt.Errorf("resolve base directory: %w", err)
	}

	decls, err := parse(string(data), abs)
	if err != nil {
		return ClientSettings{}, err
	}

	for _, key := range requiredKeys {
		if _, ok := decls[key]; !ok {
			return ClientSettings{}, &ParseError{Key: key, Msg: "required key is missing"}
		}
	}

	b := builder{decls: decls, baseDir: abs}
	return b.build()
}

type builder struct {
	decls   map[string]declaration
	baseDir string
	err     error
}

func (b *builder) build() (ClientSettings, error) {
	s := ClientSettings{
		BaseDir:               b.baseDir,
		LogLocation:           LogStdout,
		SSLVerifyMode:         VerifyPeer,
		DataBagEncryptVersion: DefaultDataBagEncryptVersion,
	}

	s.NodeName = b.name(KeyNodeName)
	s.LogLevel = b.logLevel()
	s.LogLocation, s.LogFile = b.logLocation()
	s.ClientKey = b.path(KeyClientKey)
	s.ValidationClientName = b.name(KeyValidationClientName)
	s.ValidationKey = b.path(KeyValidationKey)
	s.ChefServerURL = b.serverURL()
	s.SyntaxCheckCachePath = b.path(KeySyntaxCheckCachePath)
	s.SSLVerifyMode = b.verifyMode()
	s.CookbookPath = b.cookbookPath()
	s.CookbookCopyright = b.str(KeyCookbookCopyright)
	s.CookbookEmail = b.str(KeyCookbookEmail)
	s.DataBagEncryptVersion = b.encryptVersion()

	if b.err != nil {
		return ClientSettings{}, b.err
	}
	return s, nil
}

// lookup returns the declaration for key once no earlier field has failed.
func (b *builder) lookup(key string) (declaration, bool) {
	if b.err != nil {
		return declaration{}, false
	}
	d, ok := b.decls[key]
	return d, ok
}

func (b *builder) malformed(key string, d declaration, want string) {
	b.err = &ParseError{Key: key, Line: d.line, Msg: fmt.Sprintf("expected %s, got %s", want, d.value.kind)}
}

func (b *builder) invalid(key, val, msg string) {
	b.err = &ValidationError{Key: key, Value: val, Msg: msg}
}

func (b *builder) str(key string) string {
	d, ok := b.lookup(key)
	if !ok {
		return ""
	}
	if d.value.kind != kindString {
		b.malformed(key, d, "a string")
		return ""
	}
	return d.value.str
}

func (b *builder) name(key string) string {
	s := b.str(key)
	if b.err == nil && s == "" {
		b.invalid(key, "", "must not be empty")
	}
	return s
}

func (b *builder) path(key string) string {
	d, ok := b.lookup(key)
	if !ok {
		return ""
	}
	if d.value.kind != kindString {
		b.malformed(key, d, "a path string")
		return ""
	}
	p, err := resolvePath(b.baseDir, key, d.value.str)
	if err != nil {
		b.err = err
		return ""
	}
	return p
}

func (b *builder) logLevel() string {
	d, ok := b.lookup(KeyLogLevel)
	if !ok {
		return ""
	}
	if d.value.kind != kindSymbol && d.value.kind != kindString {
		b.malformed(KeyLogLevel, d, "a symbol")
		return ""
	}
	if !slices.Contains(logLevels, d.value.str) {
		b.invalid(KeyLogLevel, d.value.str, "unknown log level")
		return ""
	}
	return d.value.str
}

func (b *builder) logLocation() (LogDestination, string) {
	d, ok := b.lookup(KeyLogLocation)
	if !ok {
		return LogStdout, ""
	}
	switch d.value.kind {
	case kindConst:
		if d.value.str == "STDOUT" {
			return LogStdout, ""
		}
		b.invalid(KeyLogLocation, d.value.str, "only STDOUT, nil or a file path are supported")
	case kindNil:
		return LogNone, ""
	case kindString:
		p, err := resolvePath(b.baseDir, KeyLogLocation, d.value.str)
		if err != nil {
			b.err = err
			return "", ""
		}
		return LogFile, p
	case kindSymbol:
		b.invalid(KeyLogLocation, ":"+d.value.str, "only STDOUT, nil or a file path are supported")
	default:
		b.malformed(KeyLogLocation, d, "STDOUT, nil or a path string")
	}
	return "", ""
}

func (b *builder) serverURL() string {
	raw := b.str(KeyChefServerURL)
	if b.err != nil {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		b.invalid(KeyChefServerURL, raw, "not a valid URL")
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		b.invalid(KeyChefServerURL, raw, "scheme must be http or https")
		return ""
	}
	if u.Host == "" {
		b.invalid(KeyChefServerURL, raw, "host is missing")
		return ""
	}
	return raw
}

func (b *builder) verifyMode() VerifyMode {
	d, ok := b.lookup(KeySSLVerifyMode)
	if !ok {
		return VerifyPeer
	}
	if d.value.kind != kindSymbol {
		b.malformed(KeySSLVerifyMode, d, "a symbol")
		return ""
	}
	switch d.value.str {
	case "verify_peer":
		return VerifyPeer
	case "verify_none":
		return VerifyNone
	default:
		b.invalid(KeySSLVerifyMode, ":"+d.value.str, "expected :verify_peer or :verify_none")
		return ""
	}
}

func (b *builder) cookbookPath() []string {
	d, ok := b.lookup(KeyCookbookPath)
	if !ok {
		return nil
	}

	var raw []string
	switch d.value.kind {
	case kindString:
		raw = []string{d.value.str}
	case kindList:
		for _, item := range d.value.list {
			if item.kind != kindString {
				b.err = &ParseError{Key: KeyCookbookPath, Line: item.line, Msg: fmt.Sprintf("array entries must be path strings, got %s", item.kind)}
				return nil
			}
			raw = append(raw, item.str)
		}
	default:
		b.malformed(KeyCookbookPath, d, "an array of path strings")
		return nil
	}

	if len(raw) == 0 {
		b.invalid(KeyCookbookPath, "", "at least one path is required")
		return nil
	}

	paths := make([]string, 0, len(raw))
	for _, p := range raw {
		resolved, err := resolvePath(b.baseDir, KeyCookbookPath, p)
		if err != nil {
			b.err = err
			return nil
		}
		paths = append(paths, resolved)
	}
	return paths
}

func (b *builder) encryptVersion() int {
	d, ok := b.lookup(KeyDataBagEncryptVersion)
	if !ok {
		return DefaultDataBagEncryptVersion
	}
	if d.value.kind != kindInt {
		b.malformed(KeyDataBagEncryptVersion, d, "an integer")
		return 0
	}
	v := int(d.value.num)
	if int64(v) != d.value.num || !slices.Contains(supportedEncryptVersions, v) {
		b.invalid(KeyDataBagEncryptVersion, strconv.FormatInt(d.value.num, 10), "supported versions are 1, 2 and 3")
		return 0
	}
	return v
}

func resolvePath(baseDir, key, p string) (string, error) {
	if p == "" {
		return "", &ValidationError{Key: key, Msg: "path must not be empty"}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return filepath.Clean(p), nil
}
