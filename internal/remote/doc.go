// Package remote is the boundary to the version-control/hosting provider.
//
// Every provider call goes through Client, which applies the per-operation
// retry policy and turns whatever the provider returned into one of a closed
// set of Kinds. Callers branch on the Kind instead of on status codes.
package remote
