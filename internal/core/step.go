package core

type StepID string

const (
	StepSystemCheck  StepID = "system_check"
	StepGUITools     StepID = "gui_tools"
	StepCLITools     StepID = "cli_tools"
	StepPackages     StepID = "packages"
	StepDotfiles     StepID = "dotfiles"
	StepVerification StepID = "verification"
)

// Step is one weighted phase of the install sequence.
type Step struct {
	ID     StepID
	Label  string
	Weight int
}

// Steps is the fixed install order. Weights sum to 100.
var Steps = []Step{
	{StepSystemCheck, "System Compatibility Check", 10},
	{StepGUITools, "Installing GUI Applications", 30},
	{StepCLITools, "Installing CLI Tools", 25},
	{StepPackages, "Installing Packages", 20},
	{StepDotfiles, "Configuring Environment", 10},
	{StepVerification, "Verifying Installation", 5},
}

// StepByID looks up a step of the fixed sequence.
func StepByID(id StepID) (Step, bool) {
	for _, s := range Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// WeightBefore is the cumulative progress committed once every step ahead of id succeeded.
func WeightBefore(id StepID) int {
	total := 0
	for _, s := range Steps {
		if s.ID == id {
			return total
		}
		total += s.Weight
	}
	return total
}

// Percent returns 100*done/total rounded half up. A zero total is complete.
func Percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return (200*done + total) / (2 * total)
}
