package model

import (
	"fmt"
	"strings"
)

// Policy selects which pending disk request is serviced next.
type Policy string

const (
	PolicyFCFS  Policy = "fcfs"
	PolicySSTF  Policy = "sstf"
	PolicyCSCAN Policy = "cscan"
)

// DefaultPolicy is the policy a freshly initialized disk manager uses.
const DefaultPolicy = PolicyCSCAN

// Policies lists every supported policy in display order.
var Policies = []Policy{PolicyFCFS, PolicySSTF, PolicyCSCAN}

// String returns the string representation of the policy.
func (p Policy) String() string {
	return string(p)
}

// Describe returns a one-line description of the policy.
func (p Policy) Describe() string {
	switch p {
	case PolicyFCFS:
		return "first come, first served (arrival order)"
	case PolicySSTF:
		return "shortest seek time first (nearest block to the head)"
	case PolicyCSCAN:
		return "circular scan (upward sweep, wraps to the lowest block)"
	}
	return "unknown policy"
}

// ParsePolicy converts a case-insensitive name to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fcfs":
		return PolicyFCFS, nil
	case "sstf":
		return PolicySSTF, nil
	case "cscan", "c-scan":
		return PolicyCSCAN, nil
	}
	return "", fmt.Errorf("unknown disk scheduling policy %q (want fcfs, sstf or cscan)", s)
}
