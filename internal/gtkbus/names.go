package gtkbus

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// Service name templates. Each instance of the application derives its
// helper names from a hash of its working directory, so two instances
// pointed at different profiles never collide on the bus while restarts
// of the same instance reuse the same identity.
const (
	appServiceTemplate     = "org.halcyon.desktop.GtkIntegration-%s"
	baseServiceTemplate    = "org.halcyon.desktop.BaseGtkIntegration-%s"
	webviewServiceTemplate = "org.halcyon.desktop.GtkIntegration.WebviewHelper-%s-%d"
)

// ServiceName returns the bus name a helper of the given type claims for
// the application instance rooted at workDir. Deterministic: the parent
// and the helper compute it independently and must agree.
func ServiceName(t Type, workDir string) string {
	switch t {
	case TypeBase:
		return fmt.Sprintf(baseServiceTemplate, workDirHash(workDir))
	default:
		return fmt.Sprintf(appServiceTemplate, workDirHash(workDir))
	}
}

// WebviewServiceName returns the bus name for a webview helper occupying
// the given slot. Unlike the base and app helpers, several webview
// helpers may run concurrently, one per slot.
func WebviewServiceName(workDir string, slot int) string {
	return fmt.Sprintf(webviewServiceTemplate, workDirHash(workDir), slot)
}

func workDirHash(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	sum := md5.Sum([]byte(abs))
	return hex.EncodeToString(sum[:])
}
