package main

// WordCatalog supplies the word pool for new games. The built-in
// catalog ships a few themed categories; an external catalog service
// can be swapped in behind the same interface.
type WordCatalog interface {
	Words(categories []string) []string
}

type staticCatalog struct{}

func (staticCatalog) Words(categories []string) []string {
	seen := make(map[string]bool)
	var pool []string

	for _, category := range categories {
		for _, word := range wordLists[category] {
			if seen[word] {
				continue
			}
			seen[word] = true
			pool = append(pool, word)
		}
	}
	return pool
}

var wordLists = map[string][]string{
	"conference": {
		"synergy", "pivot", "roadmap", "bandwidth", "deep dive",
		"circle back", "touch base", "low-hanging fruit", "alignment", "stakeholder",
		"deliverable", "action item", "offline", "ping me", "leverage",
		"paradigm shift", "move the needle", "win-win", "best practice", "deck",
		"takeaway", "ideate", "north star", "quick win", "scalable",
		"ecosystem", "thought leader", "disrupt", "granular", "streamline",
		"value-add", "core competency", "holistic", "drill down", "table this",
	},
	"sports": {
		"home run", "hat trick", "buzzer beater", "overtime", "photo finish",
		"underdog", "comeback", "shutout", "grand slam", "free kick",
		"slam dunk", "penalty", "red card", "hail mary", "full court press",
		"curveball", "knockout", "triple play", "offside", "power play",
		"clean sheet", "walk-off", "sudden death", "nutmeg", "ace serve",
		"double fault", "birdie", "hole in one", "false start", "relay",
	},
	"wedding": {
		"first dance", "bouquet toss", "best man speech", "tearful toast", "open bar",
		"flower girl", "ring bearer", "conga line", "cake cutting", "slow song",
		"photo booth", "garter toss", "champagne pop", "awkward uncle", "vows",
		"confetti", "father daughter dance", "late arrival", "dress mishap", "dj request",
		"bridesmaid", "groomsman", "sparkler exit", "seating mixup", "babies crying",
		"electric slide", "macarena", "karaoke", "wrong name", "encore",
	},
	"roadtrip": {
		"rest stop", "license plate game", "are we there yet", "wrong turn", "toll booth",
		"gas station snacks", "dead phone", "scenic overlook", "detour", "traffic jam",
		"roadkill", "billboard", "drive-thru", "carpool karaoke", "map argument",
		"speed trap", "flat tire", "hitchhiker", "truck stop", "state line",
		"motel", "sunrise drive", "radio static", "windows down", "cruise control",
		"backseat driver", "pit stop", "lost luggage", "roadside diner", "car nap",
	},
}
