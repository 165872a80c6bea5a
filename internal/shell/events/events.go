// Package events provides the lifecycle event bus of a pipeline run.
// This is part of the Imperative Shell - observers log, meter and journal
// what the pipeline does without influencing it.
package events

import (
	"github.com/artpar/lambdaship/internal/core/deployment"
)

// =============================================================================
// Event Names
// =============================================================================

// Name identifies a lifecycle event.
type Name string

const (
	WillPackageFunctions     Name = "willPackageFunctions"
	DidPackageFunctions      Name = "didPackageFunctions"
	WillPackageFunction      Name = "willPackageFunction"
	DidPackageFunction       Name = "didPackageFunction"
	WillReadFunctionMetaFile Name = "willReadFunctionMetaFile"
	DidReadFunctionMetaFile  Name = "didReadFunctionMetaFile"
	WillInstallFunction      Name = "willInstallFunction"
	DidInstallFunction       Name = "didInstallFunction"
	WillZipFunction          Name = "willZipFunction"
	DidZipFunction           Name = "didZipFunction"
	WillDeployToEnvironments Name = "willDeployToEnvironments"
	DidDeployToEnvironments  Name = "didDeployToEnvironments"
	WillDeployFunctions      Name = "willDeployFunctions"
	DidDeployFunctions       Name = "didDeployFunctions"
	WillDeployFunction       Name = "willDeployFunction"
	DidDeployFunction        Name = "didDeployFunction"
)

// Names lists the full event vocabulary in pipeline order.
var Names = []Name{
	WillPackageFunctions, WillPackageFunction,
	WillReadFunctionMetaFile, DidReadFunctionMetaFile,
	WillInstallFunction, DidInstallFunction,
	WillZipFunction, DidZipFunction,
	DidPackageFunction, DidPackageFunctions,
	WillDeployToEnvironments, WillDeployFunctions,
	WillDeployFunction, DidDeployFunction,
	DidDeployFunctions, DidDeployToEnvironments,
}

// =============================================================================
// Payloads
// =============================================================================

// Event is a named lifecycle notification. Payload is one of the payload
// types below, passed by value.
type Event struct {
	Name    Name
	Payload any
}

// FunctionsPayload accompanies willPackageFunctions and didPackageFunctions.
type FunctionsPayload struct {
	FunctionNames []string
}

// FunctionPayload accompanies the per-function packaging events.
type FunctionPayload struct {
	FunctionName string
	FunctionDir  string
	ZipFilePath  string
	MetaFilePath string
}

// EnvironmentsPayload accompanies willDeployToEnvironments and
// didDeployToEnvironments.
type EnvironmentsPayload struct {
	EnvironmentNames []deployment.Environment
}

// EnvironmentPayload accompanies willDeployFunctions and didDeployFunctions.
type EnvironmentPayload struct {
	EnvironmentName deployment.Environment
	FunctionNames   []string
}

// DeployPayload accompanies willDeployFunction and didDeployFunction.
// FunctionArn is only set on didDeployFunction.
type DeployPayload struct {
	EnvironmentName    deployment.Environment
	FunctionName       string
	RemoteFunctionName string
	ZipFilePath        string
	ZipFileSize        int64
	FunctionArn        string
}
