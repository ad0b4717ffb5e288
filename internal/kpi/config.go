package kpi

// Thresholds are the late-day limits per category; a delay strictly above its
// threshold is late.
type Thresholds struct {
	Upload int `yaml:"upload"`
	Task   int `yaml:"task"`
	Form   int `yaml:"form"`
}

// DefaultThresholds is the per-category shape: uploads 3 days, tasks 5, forms 7.
func DefaultThresholds() Thresholds {
	return Thresholds{Upload: 3, Task: 5, Form: 7}
}

// UniformThresholds applies one limit to every category.
func UniformThresholds(days int) Thresholds {
	return Thresholds{Upload: days, Task: days, Form: days}
}

// VisitWindow is the protocol band of a visit relative to the subject's baseline.
type VisitWindow struct {
	Name          string `yaml:"name"`
	OffsetDays    int    `yaml:"offset_days"`
	ToleranceDays int    `yaml:"tolerance_days"`
}

func DefaultWindows() []VisitWindow {
	return []VisitWindow{
		{Name: "Week 2", OffsetDays: 14, ToleranceDays: 3},
		{Name: "Week 4", OffsetDays: 28, ToleranceDays: 3},
		{Name: "Week 8", OffsetDays: 56, ToleranceDays: 5},
		{Name: "Week 12", OffsetDays: 84, ToleranceDays: 7},
		{Name: "Month 6", OffsetDays: 182, ToleranceDays: 14},
		{Name: "Month 12", OffsetDays: 365, ToleranceDays: 14},
	}
}

type Config struct {
	Thresholds         Thresholds
	ExpectedVisitRows  int
	Windows            []VisitWindow
	BaselineAssessment string
}

func DefaultConfig() Config {
	return Config{
		Thresholds:         DefaultThresholds(),
		ExpectedVisitRows:  6,
		Windows:            DefaultWindows(),
		BaselineAssessment: "Baseline",
	}
}
