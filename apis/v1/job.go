package v1

//go:generate go run ../../scripts/gen-docs.go

// ConvertJob describes one conversion against a hepdata-converter-ws server.
type ConvertJob struct {
	Kind     string         `yaml:"kind" json:"kind" validate:"required,oneof=ConvertJob"`
	Metadata Metadata       `yaml:"metadata" json:"metadata"`
	Spec     ConvertJobSpec `yaml:"spec" json:"spec"`
}

type Metadata struct {
	// Name identifies the job in logs and is exposed as $JOB_NAME.
	Name string `yaml:"name" json:"name" validate:"required"`
}

type ConvertJobSpec struct {
	Server ServerSpec `yaml:"server" json:"server"`
	Input  InputSpec  `yaml:"input" json:"input"`

	// Options are passed through to the converter, e.g. input_format and output_format.
	// String values are expanded.
	Options map[string]any `yaml:"options,omitempty" json:"options,omitempty" template:""`

	// ID is the cache key sent to the server. Omitted when empty.
	ID any `yaml:"id,omitempty" json:"id,omitempty"`

	// Output configures where the result goes (default: stdout).
	Output *OutputSpec `yaml:"output,omitempty" json:"output,omitempty"`
}

// ServerSpec locates the conversion service.
type ServerSpec struct {
	// URL is the base URL of the server; requests go to {url}/convert.
	URL string `yaml:"url" json:"url" validate:"required" template:""`

	// Timeout in seconds for the HTTP exchange. Default: "600"
	Timeout *int `yaml:"timeout,omitempty" json:"timeout,omitempty" validate:"omitempty,gt=0"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty" template:""`

	// Insecure skips TLS certificate verification.
	Insecure bool `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// InputSpec configures what is converted.
type InputSpec struct {
	// Path is a file or a directory. Directories are packed recursively.
	Path string `yaml:"path" json:"path" validate:"required" template:""`
}

// OutputSpec configures how results are written.
type OutputSpec struct {
	// Extract unpacks the result archive into a filesystem sink path.
	// Only valid with the filesystem sink, where it defaults to true.
	Extract *bool `yaml:"extract,omitempty" json:"extract,omitempty"`

	// Sink configures where the result is delivered (default: stdout).
	Sink *SinkSpec `yaml:"sink,omitempty" json:"sink,omitempty"`
}

// SinkSpec configures the destination (one of the fields should be set).
type SinkSpec struct {
	Stdout     *StdoutSinkSpec     `yaml:"stdout,omitempty" json:"stdout,omitempty"`
	Filesystem *FilesystemSinkSpec `yaml:"filesystem,omitempty" json:"filesystem,omitempty"`
	S3         *S3SinkSpec         `yaml:"s3,omitempty" json:"s3,omitempty"`
}

// StdoutSinkSpec writes the raw result archive to stdout (no options currently).
type StdoutSinkSpec struct{}

// FilesystemSinkSpec writes the result to a local path.
type FilesystemSinkSpec struct {
	// Path receives the raw archive, or the extracted result when extracting.
	// An existing path is replaced.
	Path string `yaml:"path" json:"path" validate:"required" template:""`
}

// S3SinkSpec uploads the raw result archive to S3-compatible storage.
// Nothing is uploaded when the server does not return an archive.
type S3SinkSpec struct {
	Bucket string `yaml:"bucket" json:"bucket" validate:"required" template:""`

	// Key of the uploaded object. Defaults to "$JOB_NAME.tar.gz"
	Key *string `yaml:"key,omitempty" json:"key,omitempty" template:""`

	// Prefix is joined in front of the key.
	Prefix *string `yaml:"prefix,omitempty" json:"prefix,omitempty" template:""`

	Region *string `yaml:"region,omitempty" json:"region,omitempty" template:""`

	// Endpoint for S3-compatible services (MinIO, R2, ...).
	Endpoint *string `yaml:"endpoint,omitempty" json:"endpoint,omitempty" template:""`

	ForcePathStyle bool `yaml:"force_path_style,omitempty" json:"force_path_style,omitempty"`

	// Credentials override the default AWS credential chain.
	Credentials *S3Credentials `yaml:"credentials,omitempty" json:"credentials,omitempty"`
}

type S3Credentials struct {
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id" validate:"required" template:""`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key" validate:"required" template:""`
}
