package types

import "time"

// HealthStatus classifies a health score.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusWarning  HealthStatus = "warning"
	HealthStatusCritical HealthStatus = "critical"
)

// Severity of a single health issue.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Weight returns the contribution of a severity to the composite score.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 0.6
	case SeverityLow:
		return 0.3
	default:
		return 0
	}
}

// HealthIssueType names the check that produced an issue.
type HealthIssueType string

const (
	IssueDeviation    HealthIssueType = "deviation"
	IssueUtilization  HealthIssueType = "utilization"
	IssueDistribution HealthIssueType = "liquidity_distribution"
	IssueCoverage     HealthIssueType = "range_coverage"
	IssueVolatility   HealthIssueType = "volatility"
)

// HealthIssue is one triggered check.
type HealthIssue struct {
	Type      HealthIssueType `json:"type"`
	Severity  Severity        `json:"severity"`
	Message   string          `json:"message"`
	Value     float64         `json:"value"`
	Threshold float64         `json:"threshold"`
}

// HealthCheckResult is the outcome of a position health check.
type HealthCheckResult struct {
	Score           float64       `json:"score"`
	Status          HealthStatus  `json:"status"`
	Issues          []HealthIssue `json:"issues"`
	Recommendations []string      `json:"recommendations"`
	CheckedAt       time.Time     `json:"checked_at"`
}

// CheckThresholds holds the warning and critical levels of one check together with
// the severity assigned when each level is reached.
type CheckThresholds struct {
	Warning          float64  `json:"warning" yaml:"warning"`
	Critical         float64  `json:"critical" yaml:"critical"`
	WarningSeverity  Severity `json:"warning_severity" yaml:"warning_severity"`
	CriticalSeverity Severity `json:"critical_severity" yaml:"critical_severity"`
}

// HealthThresholds configures the five health checks.
type HealthThresholds struct {
	Deviation    CheckThresholds `json:"deviation" yaml:"deviation"`       // Higher is worse
	Utilization  CheckThresholds `json:"utilization" yaml:"utilization"`   // Lower is worse
	Distribution CheckThresholds `json:"distribution" yaml:"distribution"` // Lower is worse
	Coverage     CheckThresholds `json:"coverage" yaml:"coverage"`         // Lower is worse
	Volatility   CheckThresholds `json:"volatility" yaml:"volatility"`     // Higher is worse

	HealthyScore float64 `json:"healthy_score" yaml:"healthy_score"` // Minimum score for healthy
	WarningScore float64 `json:"warning_score" yaml:"warning_score"` // Minimum score for warning
}
