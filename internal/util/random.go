// Package util provides utility functions for the Salesloop application.
package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2 with optimal entropy utilization for non-cryptographic purposes.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateCadenceID generates a unique cadence ID with "cad_" prefix.
func GenerateCadenceID() string {
	return GenerateRandomID("cad_", 32)
}

// GenerateStepID generates a unique cadence step ID with "step_" prefix.
func GenerateStepID() string {
	return GenerateRandomID("step_", 32)
}

// GenerateEnrollmentID generates a unique enrollment ID with "enr_" prefix.
func GenerateEnrollmentID() string {
	return GenerateRandomID("enr_", 32)
}

// GenerateClassificationID generates a unique classification ID with "cls_" prefix.
func GenerateClassificationID() string {
	return GenerateRandomID("cls_", 32)
}

// GenerateBlocklistID generates a unique blocklist entry ID with "blk_" prefix.
func GenerateBlocklistID() string {
	return GenerateRandomID("blk_", 32)
}

// GenerateTaskID generates a unique manual task ID with "task_" prefix.
func GenerateTaskID() string {
	return GenerateRandomID("task_", 32)
}
