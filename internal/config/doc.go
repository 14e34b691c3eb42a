// Package config loads the declarative cluster-to-provider bindings.
//
// The document shape is:
//
//	default_cluster: prod-hangzhou
//	clusters:
//	  - name: prod-hangzhou
//	    provider:
//	      name: alibaba_sls
//	      endpoint: cn-hangzhou.log.aliyuncs.com
//	      project: k8s-log-c1234
//	      logstore: audit-c1234
//	      region: cn-hangzhou
//
// Validation is eager and exhaustive: Load returns a single *ValidationError
// listing every problem in document order, and nothing is constructed from a
// document that fails.
package config
