package deployment

// =============================================================================
// Environment
// =============================================================================

// Environment names a deployment target such as staging or production.
// DefaultEnvironment is used when no environments are configured; it adds
// nothing to remote names.
type Environment string

// DefaultEnvironment is the implicit unnamed environment.
const DefaultEnvironment Environment = ""

// IsDefault reports whether e is the implicit unnamed environment.
func (e Environment) IsDefault() bool {
	return e == DefaultEnvironment
}

// String returns the environment name, or "default" for the unnamed one.
func (e Environment) String() string {
	if e.IsDefault() {
		return "default"
	}
	return string(e)
}

// =============================================================================
// Pipeline Values
// =============================================================================

// Artifact is the packaged archive of one function.
type Artifact struct {
	FunctionName string
	ZipPath      string
	Size         int64
}

// Target is one function deployed to one environment.
type Target struct {
	FunctionName string
	Environment  Environment
	RemoteName   string
}

// FunctionConfig is the deployment configuration sent to the remote platform
// alongside the archive.
type FunctionConfig struct {
	Region       string
	Handler      string
	Role         string
	FunctionName string
	Description  string
	Timeout      int32
	MemorySize   int32
	Runtime      string
}

// DeployResult describes the remote function after a successful deployment.
type DeployResult struct {
	FunctionArn string
	Version     string
	Created     bool
}
