package duel

import "fmt"

// Message renders the one-line reply for an outcome, using the given display
// names for the two fighters.
func (o Outcome) Message(challenger, defender string) string {
	switch o.State {
	case Invalid:
		switch o.Reason {
		case SelfChallenge:
			return "You have to actually challenge **someone else**, smh."
		case NotPresent:
			return fmt.Sprintf("It isn't fair to steal someone's waifu behind their back, %s.", challenger)
		default:
			return "You have to actually challenge someone, smh."
		}
	case NoTarget:
		return fmt.Sprintf("Sorry, %s has to have a waifu before you can fight them for her.", defender)
	case ChallengerWins:
		if o.Revenge {
			return fmt.Sprintf("%s wins %s back from %s! There is much rejoicing.", challenger, o.Entry, defender)
		}
		return fmt.Sprintf("%s wins the duel, forcing %s to marry them instead! %s loses their waifu and is forever alone. (╥_╥)",
			challenger, o.Entry, defender)
	case DefenderWins:
		return fmt.Sprintf("%s fends off %s's challenge and preserves their waifu's honor! %s %s.",
			defender, challenger, o.Entry, o.Flavor)
	}
	return ""
}
