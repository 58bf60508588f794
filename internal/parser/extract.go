package parser

// ExtractTokens returns the candidate tokens found in line. Without capture
// groups every whole match is a token. With a single group its text is the
// token, even when empty. With several groups the first non-empty group is
// the token and matches where nothing was captured are skipped.
func ExtractTokens(line string, p Pattern) []string {
	if p == nil {
		return nil
	}

	matches := p.FindAll(line)
	if len(matches) == 0 {
		return nil
	}

	groups := p.NumGroups()
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		switch {
		case groups == 0:
			tokens = append(tokens, m.Whole)
		case groups == 1:
			tokens = append(tokens, firstGroup(m))
		default:
			if token, ok := firstNonEmpty(m.Groups); ok {
				tokens = append(tokens, token)
			}
		}
	}
	return tokens
}

// ExtractAll applies ExtractTokens to every line, preserving order.
func ExtractAll(lines []string, p Pattern) []string {
	var tokens []string
	for _, line := range lines {
		tokens = append(tokens, ExtractTokens(line, p)...)
	}
	return tokens
}

func firstGroup(m Match) string {
	if len(m.Groups) == 0 {
		return ""
	}
	return m.Groups[0]
}

func firstNonEmpty(groups []string) (string, bool) {
	for _, g := range groups {
		if g != "" {
			return g, true
		}
	}
	return "", false
}
