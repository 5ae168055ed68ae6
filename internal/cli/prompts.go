package cli

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
)

// ConfirmRun asks before kicking off a scheduler pass.
func ConfirmRun(agents int, from, to string) (bool, error) {
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Run trading sessions for %d agent(s) from %s to %s?", agents, from, to),
		Default: true,
	}
	var confirmed bool
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return false, err
	}
	return confirmed, nil
}
