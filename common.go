package apidb

import "strings"

// Common constants for descriptor and cache files
const (
	// XMLFileName is the conventional descriptor name inside an SDK data directory
	XMLFileName = "api-versions.xml"

	// ConstructorName is the JVM name of instance constructors
	ConstructorName = "<init>"

	// NoLevel is returned by lookups when an API is unknown, or not deprecated/removed
	NoLevel = -1

	// MaxLevel is the highest API level the packed format can store
	MaxLevel = 0x7f
)

// memberKey strips the return type from a method signature so that
// "array()Ljava/lang/Object;" and "array()[B" share one key
func memberKey(signature string) string {
	if i := strings.IndexByte(signature, ')'); i != -1 {
		return signature[:i+1]
	}
	return signature
}

// isMethodKey reports whether a member key names a method
func isMethodKey(key string) bool {
	return strings.IndexByte(key, '(') >= 0
}

// isConstructor reports whether a method key names a constructor
func isConstructor(key string) bool {
	return strings.HasPrefix(key, ConstructorName)
}
