// Package pipeline runs the competitor price pipeline for a tenant.
//
// A run moves through pending, finding, scraping, analyzing and complete.
// The Finder discovers candidate URLs (or takes a manual list), the Scraper
// extracts product records per URL through pluggable backends, and the
// Analyzer compares them with the tenant catalog and raises pricing alerts.
//
// A failing stage never discards what earlier stages produced: the error is
// appended to State.Errors, the stage becomes error and the run stops there.
package pipeline
