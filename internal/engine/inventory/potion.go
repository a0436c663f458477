package inventory

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"narrative-companion/internal/model"
)

// PotionInfo is what the parser could learn about a potion.
type PotionInfo struct {
	Subtype   string
	Magnitude *float64
}

var (
	potionKeywords = []struct {
		pattern *regexp.Regexp
		subtype string
	}{
		{regexp.MustCompile(`(?i)health|heal`), model.PotionHealth},
		{regexp.MustCompile(`(?i)magicka|mana`), model.PotionMagicka},
		{regexp.MustCompile(`(?i)stamina|endurance`), model.PotionStamina},
	}

	signedNumber = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)
)

// InferPotion resolves a potion's subtype and magnitude.
//
// Fallback order: explicit fields first, then a keyword match on name and
// description, then the first signed number in the text as the magnitude.
// Either value may stay unknown.
func InferPotion(name, description, subtype string, damage *float64) PotionInfo {
	info := PotionInfo{Subtype: strings.ToLower(strings.TrimSpace(subtype))}
	text := name + " " + description

	if info.Subtype == "" {
		for _, kw := range potionKeywords {
			if kw.pattern.MatchString(text) {
				info.Subtype = kw.subtype
				break
			}
		}
	}

	if damage != nil && isFinite(*damage) {
		v := *damage
		info.Magnitude = &v
		return info
	}

	if m := signedNumber.FindString(text); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil && isFinite(v) {
			v = math.Abs(v)
			info.Magnitude = &v
		}
	}
	return info
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
