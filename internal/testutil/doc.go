// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing brand memory, controlling time and
// scripting model responses. Not intended for production usage.
package testutil
