// Package secrets resolves secret references in configuration.
//
// Configuration files may contain ${secret:name} placeholders instead of
// literal credentials. At load time each reference is resolved through a
// chain of providers: environment variables (GANYMEDE_SECRET_<NAME>) and,
// when a secrets directory is configured, one file per secret in
// Kubernetes mounted-secret style. Resolved values are cached with a
// short TTL.
//
// Example:
//
//	auth:
//	  api_keys:
//	    "${secret:alice-api-key}": alice
//	executors:
//	  tokens:
//	    worker-1: "${secret:worker-1-token}"
package secrets
