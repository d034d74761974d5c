package types

// Package names the compiled code may import. Each is bound to a global
// identifier supplied by the host instead of being resolved by a loader.
const (
	PackageUILibrary      = "react"
	PackageUIDOM          = "react-dom"
	PackageUIDOMClient    = "react-dom/client"
	PackageChartLibrary   = "@ant-design/plots"
	GlobalUILibrary       = "React"
	GlobalUIDOM           = "ReactDOM"
	GlobalChartingLibrary = "Charts"
)

// DefaultGlobals returns the package-to-global rewrite table. Compiled code
// and the sandbox host must agree on it.
func DefaultGlobals() map[string]string {
	return map[string]string{
		PackageUILibrary:    GlobalUILibrary,
		PackageUIDOM:        GlobalUIDOM,
		PackageUIDOMClient:  GlobalUIDOM,
		PackageChartLibrary: GlobalChartingLibrary,
	}
}
