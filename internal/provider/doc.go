// Package provider defines the backend capability every audit-log source
// implements, the factory table that maps provider types to constructors,
// and the Registry that owns one live provider per configured cluster.
//
// Concrete providers live in sub-packages and register themselves from
// init():
//
//	func init() {
//	    provider.RegisterProvider(Type, New, ValidateParams)
//	}
//
// The serve command imports them for side effects, so adding a backend
// means adding one package and one import, never touching the executor or
// the config loader.
package provider
