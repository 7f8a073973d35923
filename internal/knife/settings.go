package knife

import "slices"

// Recognised settings keys.
const (
	KeyNodeName              = "node_name"
	KeyLogLevel              = "log_level"
	KeyLogLocation           = "log_location"
	KeyClientKey             = "client_key"
	KeyValidationClientName  = "validation_client_name"
	KeyValidationKey         = "validation_key"
	KeyChefServerURL         = "chef_server_url"
	KeySyntaxCheckCachePath  = "syntax_check_cache_path"
	KeySSLVerifyMode         = "ssl_verify_mode"
	KeyCookbookPath          = "cookbook_path"
	KeyCookbookCopyright     = "cookbook_copyright"
	KeyCookbookEmail         = "cookbook_email"
	KeyDataBagEncryptVersion = "data_bag_encrypt_version"
)

// knownKeys lists every recognised key in the order Encode writes them.
var knownKeys = []string{
	KeyLogLevel,
	KeyLogLocation,
	KeyNodeName,
	KeyClientKey,
	KeyValidationClientName,
	KeyValidationKey,
	KeyChefServerURL,
	KeySyntaxCheckCachePath,
	KeySSLVerifyMode,
	KeyCookbookPath,
	KeyCookbookCopyright,
	KeyCookbookEmail,
	KeyDataBagEncryptVersion,
}

// requiredKeys must be declared in every settings file.
var requiredKeys = []string{
	KeyNodeName,
	KeyClientKey,
	KeyValidationClientName,
	KeyValidationKey,
	KeyChefServerURL,
	KeyCookbookPath,
}

// LogDestination is where the knife client writes its log.
type LogDestination string

const (
	LogStdout LogDestination = "stdout"
	LogFile   LogDestination = "file"
	LogNone   LogDestination = "none"
)

// VerifyMode is the TLS peer verification mode used against the server.
type VerifyMode string

const (
	VerifyPeer VerifyMode = "verify"
	VerifyNone VerifyMode = "none"
)

// DefaultDataBagEncryptVersion is used when data_bag_encrypt_version is absent.
const DefaultDataBagEncryptVersion = 3

var supportedEncryptVersions = []int{1, 2, 3}

var logLevels = []string{"debug", "info", "warn", "error", "fatal"}

// ClientSettings is the validated content of a knife settings file. All path
// fields are absolute. Values are built once by Load and should be treated as
// read-only; use Clone before handing them to code that may mutate slices.
type ClientSettings struct {
	BaseDir               string         `json:"baseDir" yaml:"base_dir"`
	NodeName              string         `json:"nodeName" yaml:"node_name"`
	LogLevel              string         `json:"logLevel,omitempty" yaml:"log_level,omitempty"`
	LogLocation           LogDestination `json:"logLocation" yaml:"log_location"`
	LogFile               string         `json:"logFile,omitempty" yaml:"log_file,omitempty"`
	ClientKey             string         `json:"clientKey" yaml:"client_key"`
	ValidationClientName  string         `json:"validationClientName" yaml:"validation_client_name"`
	ValidationKey         string         `json:"validationKey" yaml:"validation_key"`
	ChefServerURL         string         `json:"chefServerUrl" yaml:"chef_server_url"`
	SyntaxCheckCachePath  string         `json:"syntaxCheckCachePath,omitempty" yaml:"syntax_check_cache_path,omitempty"`
	SSLVerifyMode         VerifyMode     `json:"sslVerifyMode" yaml:"ssl_verify_mode"`
	CookbookPath          []string       `json:"cookbookPath" yaml:"cookbook_path"`
	CookbookCopyright     string         `json:"cookbookCopyright,omitempty" yaml:"cookbook_copyright,omitempty"`
	CookbookEmail         string         `json:"cookbookEmail,omitempty" yaml:"cookbook_email,omitempty"`
	DataBagEncryptVersion int            `json:"dataBagEncryptVersion" yaml:"data_bag_encrypt_version"`
}

// Clone returns a copy that shares no mutable state with s.
func (s ClientSettings) Clone() ClientSettings {
	s.CookbookPath = slices.Clone(s.CookbookPath)
	return s
}

// IsKnownKey reports whether key is a recognised settings key.
func IsKnownKey(key string) bool {
	return slices.Contains(knownKeys, key)
}
