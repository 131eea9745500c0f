// Package elk fetches error-level log records for triage.
//
// The Elasticsearch connector queries a configured index for recent
// ERROR documents; the mock source serves canned records so the
// pipeline can run without a cluster.
package elk
