// Package config provides configuration handling for stubgen.
package config

const (
	// DefaultClassVersion is the class-file major version of emitted stubs (Java 8).
	DefaultClassVersion = 52

	DefaultStubException   = "java/lang/RuntimeException"
	DefaultStubMessage     = "Stub!"
	DefaultInterfaceMarker = "android/os/IInterface"
	DefaultAidlKeyword     = "interface"
)

// DefaultOptions returns default generation options.
func DefaultOptions() Options {
	return Options{
		ClassVersion:  DefaultClassVersion,
		StubException: DefaultStubException,
		StubMessage:   DefaultStubMessage,
		KeepPrivate:   false,
		KeepSynthetic: false,
	}
}

// DefaultAidlOptions returns default AIDL reconciliation options.
func DefaultAidlOptions() AidlOptions {
	return AidlOptions{
		Keyword: DefaultAidlKeyword,
	}
}
