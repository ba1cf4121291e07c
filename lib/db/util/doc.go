// Package util holds small helpers shared by the database engines and the
// server configuration: seed generation and the FNV-1a string hash.
package util
