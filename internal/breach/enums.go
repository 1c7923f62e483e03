package breach

import (
	"fmt"
	"strings"
)

// AttackVector is the closed set of breach attack vectors.
type AttackVector string

const (
	VectorPhishing         AttackVector = "phishing"
	VectorRansomware       AttackVector = "ransomware"
	VectorAPIExploit       AttackVector = "api_exploit"
	VectorInsider          AttackVector = "insider"
	VectorSupplyChain      AttackVector = "supply_chain"
	VectorMisconfiguration AttackVector = "misconfiguration"
	VectorMalware          AttackVector = "malware"
	VectorDDoS             AttackVector = "ddos"
	VectorOther            AttackVector = "other"
)

// AttackVectors lists every valid attack vector.
var AttackVectors = []AttackVector{
	VectorPhishing, VectorRansomware, VectorAPIExploit, VectorInsider, VectorSupplyChain,
	VectorMisconfiguration, VectorMalware, VectorDDoS, VectorOther,
}

// Severity is the closed set of breach severities.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every valid severity, lowest first.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank orders severities for sorting; unknown severities rank 0.
func (s Severity) Rank() int {
	for i, v := range Severities {
		if v == s {
			return i + 1
		}
	}
	return 0
}

// UpdateType is the closed set of update kinds for a known breach.
type UpdateType string

const (
	UpdateNewInfo        UpdateType = "new_info"
	UpdateClassAction    UpdateType = "class_action"
	UpdateRegulatoryFine UpdateType = "regulatory_fine"
	UpdateRemediation    UpdateType = "remediation"
	UpdateResolution     UpdateType = "resolution"
	UpdateInvestigation  UpdateType = "investigation"
)

// UpdateTypes lists every valid update type.
var UpdateTypes = []UpdateType{
	UpdateNewInfo, UpdateClassAction, UpdateRegulatoryFine,
	UpdateRemediation, UpdateResolution, UpdateInvestigation,
}

// ParseAttackVector validates an optional attack vector.
func ParseAttackVector(raw *string) (*AttackVector, error) {
	return parseEnum("attack_vector", raw, AttackVectors)
}

// ParseSeverity validates an optional severity.
func ParseSeverity(raw *string) (*Severity, error) {
	return parseEnum("severity", raw, Severities)
}

// ParseUpdateType validates an optional update type.
func ParseUpdateType(raw *string) (*UpdateType, error) {
	return parseEnum("update_type", raw, UpdateTypes)
}

// parseEnum maps a raw backend string onto a closed set. Absent values
// (nil, empty, "null", "none") yield nil; anything else outside the set is a
// validation error.
func parseEnum[T ~string](field string, raw *string, allowed []T) (*T, error) {
	if raw == nil {
		return nil, nil
	}
	v := strings.ToLower(strings.TrimSpace(*raw))
	switch v {
	case "", "null", "none", "n/a", "unknown":
		return nil, nil
	}
	for _, a := range allowed {
		if string(a) == v {
			out := a
			return &out, nil
		}
	}
	return nil, invalid(field, fmt.Sprintf("%q is not one of %s", *raw, joinEnum(allowed)))
}

func joinEnum[T ~string](allowed []T) string {
	parts := make([]string, len(allowed))
	for i, a := range allowed {
		parts[i] = string(a)
	}
	return strings.Join(parts, "|")
}
