// Package types defines the domain records, queue entries, configuration,
// and standard errors shared by the fieldsync storage and sync packages.
package types
