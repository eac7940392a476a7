// Package container turns a manifest into the collections a bootstrap
// Manager is constructed from. Unit instances come from named factories held
// in a Registry; the host registers the factories it supports up front.
package container
