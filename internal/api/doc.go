// Package api provides the safehouse REST API: per-tenant backup jobs,
// backup and security settings, the security event log and statistics under
// /api/v1/tenants/{tenantID}, and the executor callback under /internal/v1.
//
// Tenant routes authenticate with an API key (X-API-Key or a bearer token)
// whose tenant list must cover the tenant in the path. Callbacks authenticate
// with the shared X-Executor-Token.
package api
